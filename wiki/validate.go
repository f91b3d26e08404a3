package wiki

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// requiredMessages are the messages shown for missing fields, by json name.
var requiredMessages = map[string]string{
	"address": "Name is required",
	"body":    "Content is required",
}

// validateInput checks in against the struct tags and the home page rule.
// current is the stored address of the page being edited, or empty for a
// new page.
func validateInput(in *SaveInput, current, homePage string) *ValidationError {
	verr := &ValidationError{}

	if err := validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			verr.Add("input", err.Error())
			return verr
		}
		for _, fe := range fieldErrs {
			verr.Add(fe.Field(), formatFieldError(fe))
		}
	}

	if strings.TrimSpace(in.Body) == "" && verr.Fields["body"] == nil {
		verr.Add("body", requiredMessages["body"])
	}
	if _, _, pageName := SplitAddress(in.Address); pageName == "" && verr.Fields["address"] == nil {
		verr.Add("address", requiredMessages["address"])
	}

	name := current
	if name == "" {
		name = in.Address
	}
	if homePage != "" && strings.EqualFold(name, homePage) && in.Address != homePage {
		verr.Add("address", fmt.Sprintf("You cannot modify home page name. Please keep it %s", homePage))
	}

	if !verr.HasErrors() {
		return nil
	}
	return verr
}

func formatFieldError(fe validator.FieldError) string {
	if fe.Tag() == "required" {
		if msg, ok := requiredMessages[fe.Field()]; ok {
			return msg
		}
		return fmt.Sprintf("%s is required", fe.Field())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

// Package validator provides small declarative validation rules used to check
// notification payloads against their registered shape and recipients against
// their channel's address format.
//
// Every helper returns a Rule, a Check func paired with translation-friendly
// error metadata. Apply evaluates rules and aggregates failures into a
// ValidationErrors value that implements error:
//
//	err := validator.Apply(
//	    validator.RequiredKey("lead_name", payload),
//	    validator.ValueKind("lead_name", payload["lead_name"], validator.KindString),
//	    validator.ValidEmail("recipient", recipient),
//	)
//	if verrs := validator.ExtractValidationErrors(err); verrs != nil {
//	    fmt.Println(verrs.Fields())
//	}
//
// The package is stateless and goroutine-safe.
package validator

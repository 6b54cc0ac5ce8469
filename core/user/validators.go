package user

import (
	"sort"

	"github.com/go-playground/validator/v10"
)

var (
	allRolesTag  = "allroles"
	allRolesText = "invalid roles"

	visibilityTag  = "visibility"
	visibilityText = "visibility must be one of: public, friends, only_me"
)

// Custom Validators

// allRolesValidation checks that provided user roles are all in AllRoles.
func allRolesValidation(fl validator.FieldLevel) bool {
	if roles, ok := fl.Field().Interface().([]string); ok {
		sort.Strings(AllRoles)
		for _, role := range roles {
			idx := sort.SearchStrings(AllRoles, role)
			if idx >= len(AllRoles) || AllRoles[idx] != role {
				return false
			}
		}
		return true
	}
	return false
}

// visibilityValidation checks that a privacy value is a known visibility.
func visibilityValidation(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	for _, v := range AllVisibilities {
		if val == v {
			return true
		}
	}
	return false
}

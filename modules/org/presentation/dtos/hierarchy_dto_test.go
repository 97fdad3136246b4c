package dtos

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmployeeDTO_Ok(t *testing.T) {
	cases := []struct {
		name   string
		dto    EmployeeDTO
		failed []string
	}{
		{"member", EmployeeDTO{ID: 1, Role: "Member"}, nil},
		{"supervisor lower case", EmployeeDTO{ID: 1, Role: "supervisor"}, nil},
		{"missing id", EmployeeDTO{Role: "Member"}, []string{"id"}},
		{"negative id", EmployeeDTO{ID: -4, Role: "Member"}, []string{"id"}},
		{"unknown role", EmployeeDTO{ID: 2, Role: "Boss"}, []string{"role"}},
		{"bad email", EmployeeDTO{ID: 2, Role: "Member", Email: "nope"}, []string{"email"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			errs, ok := tc.dto.Ok()
			require.Equal(t, len(tc.failed) == 0, ok)
			for _, f := range tc.failed {
				require.Contains(t, errs, f)
			}
		})
	}
}

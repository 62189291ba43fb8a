package dberr

import (
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"
)

func TestConstraintClassification(t *testing.T) {
	testCases := []struct {
		name       string
		err        error
		wantUnique bool
		wantFK     bool
	}{
		{name: "nil", err: nil},
		{name: "gorm-duplicate", err: fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), wantUnique: true},
		{name: "gorm-foreign-key", err: fmt.Errorf("insert: %w", gorm.ErrForeignKeyViolated), wantFK: true},
		{name: "raw-unique", err: errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"), wantUnique: true},
		{name: "raw-primary-key", err: errors.New("PRIMARY KEY constraint failed: votes.user_id"), wantUnique: true},
		{name: "raw-foreign-key", err: errors.New("constraint failed: FOREIGN KEY constraint failed (787)"), wantFK: true},
		{name: "other", err: errors.New("disk I/O error")},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := IsUniqueViolation(testCase.err); got != testCase.wantUnique {
				t.Fatalf("IsUniqueViolation = %v, want %v", got, testCase.wantUnique)
			}
			if got := IsForeignKeyViolation(testCase.err); got != testCase.wantFK {
				t.Fatalf("IsForeignKeyViolation = %v, want %v", got, testCase.wantFK)
			}
		})
	}
}

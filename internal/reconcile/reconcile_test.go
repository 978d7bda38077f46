package reconcile

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileNameAndDOB(t *testing.T) {
	r := Reconciler{Schema: map[string]Kind{"dob": KindDateOfBirth}}
	got := r.Reconcile(
		map[string]string{"name": "John Smith", "dob": "1990-12-12"},
		map[string][]string{"name": {"john smith"}, "dob": {"Dec-12-1990"}},
	)
	assert.Equal(t, Validation{"name": StatusValid, "dob": StatusValid}, got)
	assert.True(t, got.AllValid())
}

func TestReconcilePhoneLeadingOne(t *testing.T) {
	r := Reconciler{Schema: map[string]Kind{"phone": KindPhone}}
	got := r.Reconcile(
		map[string]string{"phone": "2707111234"},
		map[string][]string{"phone": {"12707111234"}},
	)
	assert.Equal(t, StatusValid, got["phone"])
}

func TestReconcileEmptyExtractionIsUnknown(t *testing.T) {
	declared := map[string]string{"name": "Jane", "phone": "5551234567", "code": "AB-12"}
	got := Reconciler{}.Reconcile(declared, map[string][]string{})
	for field := range declared {
		assert.Equal(t, StatusUnknown, got[field], field)
	}
	assert.Equal(t, Counts{Unknown: 3}, got.Summary())
	assert.False(t, got.AllValid())
}

func TestReconcileAnyAttemptMatches(t *testing.T) {
	got := Reconcile(
		map[string]string{"name": "Jane Doe"},
		map[string][]string{"name": {"jane dough", "", "Jane Doe"}},
	)
	assert.Equal(t, StatusValid, got["name"])
}

func TestReconcileRespectsAttemptBound(t *testing.T) {
	declared := map[string]string{"name": "Jane Doe"}
	extracted := map[string][]string{"name": {"jane dough", "janet", "jane doe"}}

	assert.Equal(t, StatusInvalid, Reconciler{MaxAttempts: 2}.Reconcile(declared, extracted)["name"])
	assert.Equal(t, StatusValid, Reconciler{MaxAttempts: 3}.Reconcile(declared, extracted)["name"])
}

func TestReconcileBlankAttemptsAndDeclared(t *testing.T) {
	got := Reconcile(
		map[string]string{"name": "Jane", "city": " "},
		map[string][]string{"name": {"  ", ""}, "city": {"boston"}},
	)
	assert.Equal(t, Validation{"name": StatusUnknown, "city": StatusUnknown}, got)
}

func TestReconcileMismatch(t *testing.T) {
	r := Reconciler{Schema: map[string]Kind{"email": KindEmail, "code": KindReference}}
	got := r.Reconcile(
		map[string]string{"email": "a@b.com", "code": "AB-12"},
		map[string][]string{"email": {"a.b@b.com"}, "code": {"ab12"}},
	)
	assert.Equal(t, Validation{"email": StatusInvalid, "code": StatusInvalid}, got)
	assert.Equal(t, []string{"code", "email"}, got.Fields())
}

func TestReconcileIsIdempotent(t *testing.T) {
	r := Reconciler{Schema: map[string]Kind{"b": KindPhone}, MaxAttempts: 2}
	prop := func(declared map[string]string, extracted map[string][]string) bool {
		first := r.Reconcile(declared, extracted)
		second := r.Reconcile(declared, extracted)
		if len(first) != len(second) {
			return false
		}
		for k, v := range first {
			if second[k] != v {
				return false
			}
		}
		return true
	}
	require.NoError(t, quick.Check(prop, nil))
}

func TestReconcileWithoutSchemaTypesFieldsByName(t *testing.T) {
	got := Reconcile(
		map[string]string{"name": "John Smith", "dob": "1990-12-12", "phone": "2707111234"},
		map[string][]string{"name": {"john smith"}, "dob": {"Dec-12-1990"}, "phone": {"12707111234"}},
	)
	assert.Equal(t, Validation{"name": StatusValid, "dob": StatusValid, "phone": StatusValid}, got)
}

func TestReconcileDeclaredNormalizingToEmptyIsUnknown(t *testing.T) {
	got := Reconcile(
		map[string]string{"name": "!!!"},
		map[string][]string{"name": {"???", "--"}},
	)
	assert.Equal(t, StatusUnknown, got["name"])
}

package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ErrorKindNone},
		{"validation", invalidField("items", "required"), ErrorKindValidation},
		{"not found", fmt.Errorf("%w: order ord_1", ErrOrderNotFound), ErrorKindNotFound},
		{"transition", &TransitionError{Field: "status", From: "CANCELLED", To: "SHIPPED"}, ErrorKindInvalidTransition},
		{"duplicate", fmt.Errorf("%w: recent", ErrDuplicateOrder), ErrorKindDuplicate},
		{"conflict", ErrOrderConflict, ErrorKindConflict},
		{"business rule", fmt.Errorf("%w: SAVE10", ErrCouponExpired), ErrorKindBusinessRule},
		{"rate limited", &RateLimitError{Key: "k", RetryAfter: time.Second}, ErrorKindRateLimited},
		{"blocked", fmt.Errorf("%w: 10.0.0.1", ErrAddressBlocked), ErrorKindBlocked},
		{"unauthenticated", ErrUnauthenticated, ErrorKindUnauthenticated},
		{"unexpected", errors.New("rpc error: code = Internal"), ErrorKindUnexpected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ClassifyError(tc.err))
		})
	}
}

func TestToActionResultSuccess(t *testing.T) {
	result := ToActionResult("Order created", Order{ID: "ord_1"}, nil)
	require.True(t, result.Success)
	require.Equal(t, "Order created", result.Message)
	require.NotNil(t, result.Data)
	require.Equal(t, "ord_1", result.Data.ID)
	require.Nil(t, result.Errors)
}

func TestToActionResultValidationCarriesFields(t *testing.T) {
	errs := ValidationErrors{}
	errs.Add("customer.email", "Email is required")
	errs.Add("items.0.quantity", "Quantity must be between 1 and 999")

	result := ToActionResult("Order created", Order{}, errs.Err())
	require.False(t, result.Success)
	require.Nil(t, result.Data)
	require.Equal(t, "Please correct the highlighted fields.", result.Message)
	require.Equal(t, []string{"Email is required"}, result.Errors["customer.email"])

	raw, err := json.Marshal(result)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, false, decoded["success"])
	require.NotContains(t, decoded, "data")
	require.Contains(t, decoded, "errors")
}

func TestToActionResultHidesUnexpectedErrors(t *testing.T) {
	result := ToActionResult("ok", Order{}, errors.New("firestore: deadline exceeded on projects/x"))
	require.False(t, result.Success)
	require.Equal(t, UnexpectedErrorMessage, result.Message)
	require.Empty(t, result.Errors)
}

func TestPublicMessageNamesTransition(t *testing.T) {
	err := &TransitionError{Field: "status", From: "CANCELLED", To: "SHIPPED"}
	require.Equal(t, "Cannot change status from CANCELLED to SHIPPED.", PublicMessage(err))
	require.Equal(t, "This coupon has reached its usage limit.", PublicMessage(fmt.Errorf("%w: x", ErrCouponExhausted)))
	require.Equal(t, "Order not found.", PublicMessage(fmt.Errorf("%w: ord_9", ErrOrderNotFound)))
}

func TestValidationErrorsMerge(t *testing.T) {
	parent := ValidationErrors{}
	child := ValidationErrors{}
	child.Add("city", "City is required")
	parent.Merge("shippingAddress", child)
	parent.Merge("", ValidationErrors{"notes": {"Too long"}})

	require.Equal(t, ValidationErrors{
		"shippingAddress.city": {"City is required"},
		"notes":                {"Too long"},
	}, parent)
	require.ErrorIs(t, parent.Err(), ErrOrderInvalidInput)
	require.NoError(t, ValidationErrors{}.Err())
}

package procurement

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func mustPrice(t *testing.T, value string) decimal.NullDecimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func TestSubmitQuotationRecordsPricing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pr := env.createPR(t, 5)
	_, err := env.service.SetApproval(ctx, "u-master", pr.ID, true)
	require.NoError(t, err)
	_, err = env.service.SendToQuotation(ctx, "u-master", pr.ID)
	require.NoError(t, err)

	supplier := "Baltic Ship Chandlers"
	quoted, err := env.service.SubmitQuotation(ctx, "u-shore", pr.ID, SubmitQuotationInput{
		Lines: []QuotationLineInput{{
			ID:           pr.Products[0].ID,
			QuotedPrice:  mustPrice(t, "42.50"),
			SupplierName: &supplier,
		}},
		Remark: "prices valid 30 days",
	})
	require.NoError(t, err)
	require.NotNil(t, quoted.QuotationCompletedAt)
	require.Equal(t, "prices valid 30 days", quoted.QuotationRemark)
	require.True(t, quoted.Products[0].QuotedPrice.Valid)
	require.True(t, quoted.Products[0].QuotedPrice.Decimal.Equal(decimal.RequireFromString("42.50")))
	require.Equal(t, supplier, *quoted.Products[0].SupplierName)
	require.False(t, quoted.Products[0].WasUnavailable)
}

func TestSubmitQuotationGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pr := env.createPR(t)

	// Not sent yet.
	_, err := env.service.SubmitQuotation(ctx, "u-shore", pr.ID, SubmitQuotationInput{
		Lines: []QuotationLineInput{{ID: pr.Products[0].ID}},
	})
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = env.service.SetApproval(ctx, "u-master", pr.ID, true)
	require.NoError(t, err)
	_, err = env.service.SendToQuotation(ctx, "u-master", pr.ID)
	require.NoError(t, err)

	_, err = env.service.SubmitQuotation(ctx, "u-shore", pr.ID, SubmitQuotationInput{})
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.service.SubmitQuotation(ctx, "u-shore", pr.ID, SubmitQuotationInput{
		Lines: []QuotationLineInput{{ID: "nope"}},
	})
	require.ErrorIs(t, err, ErrValidation)

	badReason := UnavailableReason("DISCONTINUED")
	_, err = env.service.SubmitQuotation(ctx, "u-shore", pr.ID, SubmitQuotationInput{
		Lines: []QuotationLineInput{{ID: pr.Products[0].ID, UnavailableReason: &badReason}},
	})
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.service.SubmitQuotation(ctx, "u-shore", pr.ID, SubmitQuotationInput{
		Lines: []QuotationLineInput{{ID: pr.Products[0].ID, QuotedPrice: mustPrice(t, "-1")}},
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestWasUnavailableSticks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pr := env.createPR(t)
	_, err := env.service.SetApproval(ctx, "u-master", pr.ID, true)
	require.NoError(t, err)
	_, err = env.service.SendToQuotation(ctx, "u-master", pr.ID)
	require.NoError(t, err)

	reason := UnavailableOutOfStock
	quoted, err := env.service.SubmitQuotation(ctx, "u-shore", pr.ID, SubmitQuotationInput{
		Lines: []QuotationLineInput{{ID: pr.Products[0].ID, UnavailableReason: &reason}},
	})
	require.NoError(t, err)
	require.True(t, quoted.Products[0].WasUnavailable)
	require.Equal(t, UnavailableOutOfStock, *quoted.Products[0].UnavailableReason)
	firstCompleted := *quoted.QuotationCompletedAt

	// Resubmission clears the reason but the flag stays and the completion
	// time is restamped.
	requoted, err := env.service.SubmitQuotation(ctx, "u-shore", pr.ID, SubmitQuotationInput{
		Lines: []QuotationLineInput{{ID: pr.Products[0].ID, QuotedPrice: mustPrice(t, "12.00")}},
	})
	require.NoError(t, err)
	require.Nil(t, requoted.Products[0].UnavailableReason)
	require.True(t, requoted.Products[0].WasUnavailable)
	require.True(t, requoted.Products[0].QuotedPrice.Valid)
	require.False(t, requoted.QuotationCompletedAt.Before(firstCompleted))
}

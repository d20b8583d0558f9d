package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispositionPredicates(t *testing.T) {
	tests := []struct {
		d          Disposition
		trainable  bool
		reviewable bool
	}{
		{DispositionAutoApproved, true, false},
		{DispositionApproved, true, false},
		{DispositionPendingReview, false, true},
		{DispositionSentForAnnotation, false, true},
		{DispositionRejected, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.d), func(t *testing.T) {
			assert.True(t, tt.d.IsValid())
			assert.Equal(t, tt.trainable, tt.d.IsTrainable())
			assert.Equal(t, tt.reviewable, tt.d.IsReviewable())
		})
	}

	assert.False(t, Disposition("ARCHIVED").IsValid())
}

func TestParseRetrainPriority(t *testing.T) {
	tests := []struct {
		in      string
		want    RetrainPriority
		wantErr bool
	}{
		{in: "low", want: RetrainPriorityLow},
		{in: " High ", want: RetrainPriorityHigh},
		{in: "", want: RetrainPriorityNormal},
		{in: "normal", want: RetrainPriorityNormal},
		{in: "urgent", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRetrainPriority(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, mustParse(t, got.String()))
		})
	}

	assert.True(t, RetrainPriorityHigh > RetrainPriorityNormal)
	assert.Equal(t, "priority(7)", RetrainPriority(7).String())
}

func mustParse(t *testing.T, s string) RetrainPriority {
	t.Helper()
	p, err := ParseRetrainPriority(s)
	require.NoError(t, err)
	return p
}

func TestCorrectionDetailEncoding(t *testing.T) {
	detail := ButtonOverride{SelectedAction: "book_hotel", ExpectedLabels: []string{"book_flight", "search_flights"}}

	data, err := EncodeCorrectionDetail(detail)
	require.NoError(t, err)
	assert.JSONEq(t, `{"selected_action":"book_hotel","expected_labels":["book_flight","search_flights"]}`, data)

	decoded, err := DecodeCorrectionDetail(CorrectionButtonOverride, data)
	require.NoError(t, err)
	assert.Equal(t, detail, decoded, "decoded as a value, not a pointer")

	c := Correction{Detail: decoded}
	assert.Equal(t, CorrectionButtonOverride, c.Type())
	assert.Equal(t, CorrectionType(""), (&Correction{}).Type())
}

func TestDecodeCorrectionDetail_Edges(t *testing.T) {
	d, err := DecodeCorrectionDetail("", "")
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = DecodeCorrectionDetail(CorrectionExplicitFeedback, "")
	require.NoError(t, err)
	assert.Equal(t, ExplicitFeedback{}, d)

	_, err = DecodeCorrectionDetail("MIND_READING", "{}")
	assert.Error(t, err)

	_, err = DecodeCorrectionDetail(CorrectionEntityMissing, "{not json")
	assert.Error(t, err)
}

package priority

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		expect    Priority
		expectErr bool
	}{
		{name: "dispute", input: "dispute", expect: Dispute},
		{name: "mixed case", input: "BackingSystemParas", expect: BackingSystemParas},
		{name: "backing", input: "backing", expect: Backing},
		{name: "unknown", input: "urgent", expectErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual, err := Parse(tc.input)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expect, actual)
			assert.Equal(t, actual, All[actual])
		})
	}
}

func TestPriority_Order(t *testing.T) {
	assert.True(t, Dispute.MoreUrgent(Approval))
	assert.True(t, Approval.MoreUrgent(Backing))
	assert.False(t, Backing.MoreUrgent(BackingSystemParas))
	assert.False(t, Priority(7).IsValid())
	assert.Equal(t, "priority(7)", Priority(7).String())
}

func TestPriority_Text(t *testing.T) {
	text, err := Approval.MarshalText()
	assert.NoError(t, err)
	var p Priority
	assert.NoError(t, p.UnmarshalText(text))
	assert.Equal(t, Approval, p)
	assert.Error(t, p.UnmarshalText([]byte("none")))
}

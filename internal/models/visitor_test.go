package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyScan(t *testing.T) {
	tests := []struct {
		name          string
		status        string
		action        string
		wantStatus    string
		wantClearExit bool
		wantErr       error
	}{
		{
			name:       "first entry",
			status:     VisitorStatusRegistered,
			action:     ActionEntry,
			wantStatus: VisitorStatusEntered,
		},
		{
			name:    "entry while inside",
			status:  VisitorStatusEntered,
			action:  ActionEntry,
			wantErr: ErrAlreadyInside,
		},
		{
			name:          "re-entry after exit clears exit time",
			status:        VisitorStatusExited,
			action:        ActionEntry,
			wantStatus:    VisitorStatusEntered,
			wantClearExit: true,
		},
		{
			name:       "exit while inside",
			status:     VisitorStatusEntered,
			action:     ActionExit,
			wantStatus: VisitorStatusExited,
		},
		{
			name:    "exit before entering",
			status:  VisitorStatusRegistered,
			action:  ActionExit,
			wantErr: ErrNotEntered,
		},
		{
			name:    "exit twice",
			status:  VisitorStatusExited,
			action:  ActionExit,
			wantErr: ErrAlreadyExited,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Visitor{Status: tt.status}
			result, err := v.ApplyScan(tt.action)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, result.NewStatus)
			assert.Equal(t, tt.wantClearExit, result.ClearExitTime)
			assert.NotEmpty(t, result.Message)
		})
	}
}

func TestApplyScanUnknownAction(t *testing.T) {
	v := Visitor{Status: VisitorStatusRegistered}
	_, err := v.ApplyScan("teleport")
	assert.Error(t, err)
}

func TestVisitorName(t *testing.T) {
	v := Visitor{Metadata: map[string]any{"visitor_name": "Jane Doe"}}
	assert.Equal(t, "Jane Doe", v.Name())

	v = Visitor{Metadata: map[string]any{}}
	assert.Equal(t, "Unknown Visitor", v.Name())

	v = Visitor{}
	assert.Equal(t, "Unknown Visitor", v.Name())
}

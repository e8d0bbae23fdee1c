package core

import (
	"errors"
	"testing"
	"time"
)

func TestValidateNote(t *testing.T) {
	valid := func() *Note {
		return &Note{
			Tenant:    1,
			Content:   "remember the milk",
			CreatedAt: time.Now().Add(-time.Hour),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Note)
		note    *Note
		wantErr error
	}{
		{name: "valid note", mutate: func(n *Note) {}},
		{
			name:    "missing tenant",
			mutate:  func(n *Note) { n.Tenant = 0 },
			wantErr: ErrMissingTenant,
		},
		{
			name:    "empty content",
			mutate:  func(n *Note) { n.Content = "   " },
			wantErr: ErrEmptyContent,
		},
		{
			name:    "future timestamp",
			mutate:  func(n *Note) { n.CreatedAt = time.Now().Add(time.Hour) },
			wantErr: ErrInvalidTimestamp,
		},
		{
			name:    "wrong vector dimensionality",
			mutate:  func(n *Note) { n.Vector = []float32{0.1, 0.2} },
			wantErr: ErrVectorDimension,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			note := valid()
			tt.mutate(note)

			err := ValidateNote(note, 3)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateNote() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateNote() = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidNote) {
				t.Errorf("ValidateNote() = %v, want wrapped ErrInvalidNote", err)
			}
		})
	}

	t.Run("nil note", func(t *testing.T) {
		if err := ValidateNote(nil, 3); !errors.Is(err, ErrInvalidNote) {
			t.Errorf("ValidateNote(nil) = %v, want ErrInvalidNote", err)
		}
	})

	t.Run("exact vector dimensionality accepted", func(t *testing.T) {
		note := valid()
		note.Vector = []float32{0.1, 0.2, 0.3}
		if err := ValidateNote(note, 3); err != nil {
			t.Errorf("ValidateNote() = %v, want nil", err)
		}
	})
}

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{name: "nil input", in: nil, want: nil},
		{name: "dedupe case-insensitively", in: []string{"Work", "work", "WORK"}, want: []string{"work"}},
		{name: "trim and drop empties", in: []string{" travel ", "", "  "}, want: []string{"travel"}},
		{name: "preserve first-seen order", in: []string{"b", "a", "b"}, want: []string{"b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTags(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("NormalizeTags() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("NormalizeTags()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

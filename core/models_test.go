package core

import (
	"testing"
	"time"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "same content produces same ID", content: "test content"},
		{name: "empty string", content: ""},
		{name: "long content", content: "This is a much longer piece of content that should still hash consistently"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	id1 := IDFromContent("content1")
	id2 := IDFromContent("content2")

	if id1 == id2 {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestNote_HasVector(t *testing.T) {
	note := &Note{Tenant: 1, Content: "hello"}
	if note.HasVector() {
		t.Error("HasVector() = true for note without vector")
	}

	note.Vector = []float32{0.1, 0.2}
	if !note.HasVector() {
		t.Error("HasVector() = false for note with vector")
	}
}

func TestNoteMUS_RoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	note := Note{
		Id:        42,
		Tenant:    7,
		Content:   "купил билеты на поезд, tickets booked",
		CreatedAt: now,
		UpdatedAt: now.Add(time.Minute),
		Tags:      []string{"travel", "personal"},
		Category:  "personal",
		Metadata:  map[string]string{"source": "bot"},
		Vector:    []float32{0.25, -0.5, 0.75},
	}

	buf := make([]byte, NoteMUS.Size(note))
	n := NoteMUS.Marshal(note, buf)
	if n != len(buf) {
		t.Fatalf("Marshal wrote %d bytes, Size reported %d", n, len(buf))
	}

	decoded, m, err := NoteMUS.Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m != n {
		t.Errorf("Unmarshal consumed %d bytes, want %d", m, n)
	}

	if decoded.Id != note.Id || decoded.Tenant != note.Tenant || decoded.Content != note.Content {
		t.Errorf("decoded identity fields differ: %+v", decoded)
	}
	if !decoded.CreatedAt.Equal(note.CreatedAt) || !decoded.UpdatedAt.Equal(note.UpdatedAt) {
		t.Errorf("decoded timestamps differ: %v / %v", decoded.CreatedAt, decoded.UpdatedAt)
	}
	if len(decoded.Tags) != 2 || decoded.Tags[0] != "travel" {
		t.Errorf("decoded tags differ: %v", decoded.Tags)
	}
	if decoded.Category != "personal" || decoded.Metadata["source"] != "bot" {
		t.Errorf("decoded category/metadata differ: %v %v", decoded.Category, decoded.Metadata)
	}
	if len(decoded.Vector) != 3 || decoded.Vector[2] != 0.75 {
		t.Errorf("decoded vector differs: %v", decoded.Vector)
	}
}

func TestNoteMUS_ZeroTime(t *testing.T) {
	note := Note{Id: 1, Tenant: 1, Content: "x"}

	buf := make([]byte, NoteMUS.Size(note))
	NoteMUS.Marshal(note, buf)

	decoded, _, err := NoteMUS.Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.CreatedAt.IsZero() {
		t.Errorf("zero CreatedAt did not round-trip: %v", decoded.CreatedAt)
	}
}

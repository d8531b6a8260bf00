package locator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/devicelab-dev/qa-runner/pkg/core"
)

// fakeGenerator records the request and returns a canned reply.
type fakeGenerator struct {
	reply    string
	err      error
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.reply}}},
		}},
	}, nil
}

func TestVision_Found(t *testing.T) {
	gen := &fakeGenerator{reply: "```json\n{\"found\": true, \"x\": 540, \"y\": 1200, \"confidence\": 0.9, \"reason\": \"blue button\"}\n```"}
	v := NewVisionWithGenerator(gen, "")
	src := &fakeSource{screen: []byte("png-bytes")}

	r := v.Locate(context.Background(), src, "Create a vault", "primary button")

	if !r.Found || r.X != 540 || r.Y != 1200 {
		t.Fatalf("result = %+v, want found at (540, 1200)", r)
	}
	if r.MatchedOn != core.MatchVisionModel {
		t.Errorf("MatchedOn = %s", r.MatchedOn)
	}
	if r.Metadata["confidence"] != "0.90" || r.Metadata["model"] != DefaultVisionModel {
		t.Errorf("Metadata = %v", r.Metadata)
	}

	if gen.model != DefaultVisionModel {
		t.Errorf("model = %q", gen.model)
	}
	if len(gen.contents) != 1 || len(gen.contents[0].Parts) != 2 {
		t.Fatalf("contents = %+v", gen.contents)
	}
	prompt := gen.contents[0].Parts[0].Text
	if !strings.Contains(prompt, "TARGET: Create a vault") || !strings.Contains(prompt, "HINT: primary button") {
		t.Errorf("prompt = %q", prompt)
	}
	blob := gen.contents[0].Parts[1].InlineData
	if blob == nil || blob.MIMEType != core.ContentTypePNG || string(blob.Data) != "png-bytes" {
		t.Errorf("inline data = %+v", blob)
	}
	if gen.config.ResponseMIMEType != "application/json" {
		t.Errorf("ResponseMIMEType = %q", gen.config.ResponseMIMEType)
	}
}

func TestVision_Replies(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		status core.LocateStatus
		reason string
	}{
		{"not found", `{"found": false, "reason": "no such button"}`, core.LocateNotFound, "no such button"},
		{"not found default reason", `{"found": false}`, core.LocateNotFound, `"Save"`},
		{"garbage", `I think it's the blue one`, core.LocateError, "valid JSON"},
		{"missing coordinates", `{"found": true, "x": 10}`, core.LocateError, "coordinates"},
		{"negative coordinates", `{"found": true, "x": -1, "y": 5}`, core.LocateError, "coordinates"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVisionWithGenerator(&fakeGenerator{reply: tt.reply}, "m")
			r := v.Locate(context.Background(), &fakeSource{screen: []byte("x")}, "Save", "")
			if r.Found || r.Status != tt.status {
				t.Errorf("result = %+v, want status %s", r, tt.status)
			}
			if !strings.Contains(r.Reason, tt.reason) {
				t.Errorf("Reason = %q, want to contain %q", r.Reason, tt.reason)
			}
			if r.Metadata["reply"] != tt.reply {
				t.Errorf("reply metadata = %q", r.Metadata["reply"])
			}
		})
	}
}

func TestVision_Failures(t *testing.T) {
	v := NewVisionWithGenerator(&fakeGenerator{err: errors.New("quota exceeded")}, "m")

	r := v.Locate(context.Background(), &fakeSource{screen: []byte("x")}, "Save", "")
	if r.Status != core.LocateError || !strings.Contains(r.Reason, "quota exceeded") {
		t.Errorf("request failure result = %+v", r)
	}

	r = v.Locate(context.Background(), &fakeSource{screenErr: errors.New("screencap failed")}, "Save", "")
	if r.Status != core.LocateSnapshotUnavailable {
		t.Errorf("screen failure status = %s", r.Status)
	}
}

func TestNewVision_RequiresKey(t *testing.T) {
	if _, err := NewVision(context.Background(), "", ""); err == nil {
		t.Error("expected error without API key")
	}
}

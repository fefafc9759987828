package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/earhater/shumaxer-bot/pkg/stickerbot"
)

type stubResolver struct {
	triggers map[string]string // normalized trigger -> image ref
	lookups  []string
	usages   []stickerbot.UsageEvent
}

func (s *stubResolver) FindImageByTrigger(_ context.Context, text string) (string, bool) {
	s.lookups = append(s.lookups, text)
	for trigger, ref := range s.triggers {
		if strings.Contains(trigger, text) {
			return ref, true
		}
	}

	return "", false
}

func (s *stubResolver) RecordUsage(_ context.Context, owner int64, imageRef, trigger string) {
	s.usages = append(s.usages, stickerbot.UsageEvent{OwnerID: owner, ImageRef: imageRef, Trigger: trigger})
}

type captureMessenger struct {
	sentImages []stickerbot.SendImageRequest
	sendErr    error
}

func (c *captureMessenger) SendText(_ context.Context, _ stickerbot.SendTextRequest) (*stickerbot.SentMessage, error) {
	return &stickerbot.SentMessage{ID: "1"}, nil
}

func (c *captureMessenger) SendImage(_ context.Context, request stickerbot.SendImageRequest) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sentImages = append(c.sentImages, request)

	return nil
}

func (c *captureMessenger) AnswerButton(_ context.Context, _ stickerbot.AnswerButtonRequest) error {
	return nil
}

func (c *captureMessenger) EditText(_ context.Context, _ stickerbot.EditTextRequest) error {
	return nil
}

func (c *captureMessenger) EditButtons(_ context.Context, _ stickerbot.EditButtonsRequest) error {
	return nil
}

func TestHandleResolution(t *testing.T) {
	tests := []struct {
		name        string
		triggers    map[string]string
		input       string
		wantHit     bool
		wantRef     string
		wantTrigger string
	}{
		{
			name:        "whole text match",
			triggers:    map[string]string{"hello there": "doc:1:1"},
			input:       "Hello There",
			wantHit:     true,
			wantRef:     "doc:1:1",
			wantTrigger: "hello there",
		},
		{
			name:        "token fallback resolves via second token",
			triggers:    map[string]string{"cat": "doc:2:2"},
			input:       "big cat now",
			wantHit:     true,
			wantRef:     "doc:2:2",
			wantTrigger: "cat",
		},
		{
			name:     "single-character tokens are discarded",
			triggers: map[string]string{"a": "doc:3:3"},
			input:    "a b c",
			wantHit:  false,
		},
		{
			name:     "no hit is silent",
			triggers: map[string]string{"hello": "doc:1:1"},
			input:    "goodbye",
			wantHit:  false,
		},
		{
			name:     "command marker text is never searched",
			triggers: map[string]string{"/start": "doc:1:1"},
			input:    "/start",
			wantHit:  false,
		},
		{
			name:     "reserved menu label is never searched",
			triggers: map[string]string{"my stickers": "doc:1:1"},
			input:    "My stickers",
			wantHit:  false,
		},
		{
			name:     "blank input is ignored",
			triggers: map[string]string{"hello": "doc:1:1"},
			input:    "   ",
			wantHit:  false,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			resolver := &stubResolver{triggers: testCase.triggers}
			messenger := &captureMessenger{}
			matcher, err := New(resolver, messenger, WithReservedLabels([]string{"My stickers"}))
			if err != nil {
				t.Fatalf("new matcher failed: %v", err)
			}

			hit, err := matcher.Handle(context.Background(), 7, "chat-1", testCase.input)
			if err != nil {
				t.Fatalf("handle failed: %v", err)
			}
			if hit != testCase.wantHit {
				t.Fatalf("hit = %v, want %v", hit, testCase.wantHit)
			}

			if !testCase.wantHit {
				if len(messenger.sentImages) != 0 {
					t.Fatalf("no-hit input must not send images, sent %v", messenger.sentImages)
				}
				if len(resolver.usages) != 0 {
					t.Fatalf("no-hit input must not record usage, recorded %v", resolver.usages)
				}
				return
			}

			if len(messenger.sentImages) != 1 || messenger.sentImages[0].ImageRef != testCase.wantRef {
				t.Fatalf("sent images = %v, want one send of %s", messenger.sentImages, testCase.wantRef)
			}
			if len(resolver.usages) != 1 {
				t.Fatalf("want exactly one usage event, got %d", len(resolver.usages))
			}
			usage := resolver.usages[0]
			if usage.OwnerID != 7 || usage.ImageRef != testCase.wantRef || usage.Trigger != testCase.wantTrigger {
				t.Fatalf("usage = %+v, want owner 7 ref %s trigger %s", usage, testCase.wantRef, testCase.wantTrigger)
			}
		})
	}
}

func TestHandleTokenOrderLeftToRight(t *testing.T) {
	resolver := &stubResolver{triggers: map[string]string{"big": "doc:1:1", "cat": "doc:2:2"}}
	messenger := &captureMessenger{}
	matcher, err := New(resolver, messenger)
	if err != nil {
		t.Fatalf("new matcher failed: %v", err)
	}

	hit, err := matcher.Handle(context.Background(), 7, "chat-1", "zzz big cat")
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if !hit {
		t.Fatal("want hit")
	}
	if got := messenger.sentImages[0].ImageRef; got != "doc:1:1" {
		t.Fatalf("first matching token must win, sent %s", got)
	}

	// Whole text first, then tokens scanned left to right up to the hit.
	wantLookups := []string{"zzz big cat", "zzz", "big"}
	if len(resolver.lookups) != len(wantLookups) {
		t.Fatalf("lookups = %v, want %v", resolver.lookups, wantLookups)
	}
	for i, lookup := range wantLookups {
		if resolver.lookups[i] != lookup {
			t.Fatalf("lookup[%d] = %s, want %s", i, resolver.lookups[i], lookup)
		}
	}
}

func TestHandleSendFailureRecordsNoUsage(t *testing.T) {
	resolver := &stubResolver{triggers: map[string]string{"hello": "doc:1:1"}}
	messenger := &captureMessenger{sendErr: errors.New("flood wait")}
	matcher, err := New(resolver, messenger)
	if err != nil {
		t.Fatalf("new matcher failed: %v", err)
	}

	hit, err := matcher.Handle(context.Background(), 7, "chat-1", "hello")
	if err == nil {
		t.Fatal("want send error to propagate")
	}
	if hit {
		t.Fatal("failed send must not count as a hit")
	}
	if len(resolver.usages) != 0 {
		t.Fatalf("failed send must not record usage, recorded %v", resolver.usages)
	}
}

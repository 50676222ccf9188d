package auth

import (
	"errors"
	"testing"

	"github.com/danmuck/avlgate/internal/testutil/testlog"
)

func TestStaticTokensValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  StaticTokens
		input   string
		wantErr error
	}{
		{name: "no tokens denied", stored: nil, input: "abc", wantErr: ErrUnauthorized},
		{name: "empty input denied", stored: StaticTokens{"abc"}, input: "", wantErr: ErrUnauthorized},
		{name: "blank stored token never matches", stored: StaticTokens{""}, input: "", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: StaticTokens{"abc"}, input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: StaticTokens{"abc"}, input: "abc", wantErr: nil},
		{name: "rotated token accepted", stored: StaticTokens{"old", "new"}, input: "new", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.stored.Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestParseTokens(t *testing.T) {
	testlog.Start(t)
	got := ParseTokens(" a, ,b ,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected tokens: %#v", got)
	}
	if len(ParseTokens("")) != 0 {
		t.Fatalf("expected no tokens from empty input")
	}
}

func TestBearerToken(t *testing.T) {
	testlog.Start(t)
	cases := map[string]struct {
		token string
		ok    bool
	}{
		"Bearer abc":   {token: "abc", ok: true},
		"bearer  abc ": {token: "abc", ok: true},
		"Basic abc":    {ok: false},
		"Bearer":       {ok: false},
		"":             {ok: false},
	}
	for header, want := range cases {
		token, ok := BearerToken(header)
		if ok != want.ok || token != want.token {
			t.Fatalf("%q: got token=%q ok=%v", header, token, ok)
		}
	}
}

func TestFuncValidator(t *testing.T) {
	testlog.Start(t)
	validator := FuncValidator(func(token string) error {
		if token != "ok" {
			return ErrUnauthorized
		}
		return nil
	})
	if err := validator.Validate("ok"); err != nil {
		t.Fatalf("expected ok token accepted, got %v", err)
	}
	if err := validator.Validate("nope"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

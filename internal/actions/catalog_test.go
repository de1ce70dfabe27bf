package actions

import (
	"context"
	"testing"
)

func TestTypeInternal(t *testing.T) {
	cases := []struct {
		typ  Type
		want bool
	}{
		{TypeReply, true},
		{TypeNoReply, true},
		{TypeNoReplyUntilCall, true},
		{Type("web_search"), false},
		{Type(""), false},
	}
	for _, tc := range cases {
		if got := tc.typ.Internal(); got != tc.want {
			t.Errorf("Type(%q).Internal() = %v, want %v", tc.typ, got, tc.want)
		}
	}
}

func TestCatalogRejectsReservedNames(t *testing.T) {
	cat := NewCatalog()
	if err := cat.Register("reply", Info{}, NopFactory); err == nil {
		t.Error("registering a built-in name succeeded")
	}
	if err := cat.Register("", Info{}, NopFactory); err == nil {
		t.Error("registering an empty name succeeded")
	}
	if err := cat.Register("poke", Info{}, nil); err == nil {
		t.Error("registering without a factory succeeded")
	}
}

func TestActivationMatches(t *testing.T) {
	cases := []struct {
		name       string
		activation Activation
		transcript string
		draw       float64
		want       bool
	}{
		{"always", Activation{Kind: ActivationAlways}, "", 0, true},
		{"zero value acts as always", Activation{}, "", 0, true},
		{"llm judge", Activation{Kind: ActivationLLMJudge}, "", 0, true},
		{"never", Activation{Kind: ActivationNever}, "", 0, false},
		{"random pass", Activation{Kind: ActivationRandom, Probability: 0.5}, "", 0.4, true},
		{"random fail", Activation{Kind: ActivationRandom, Probability: 0.5}, "", 0.6, false},
		{"keyword hit", Activation{Kind: ActivationKeyword, Keywords: []string{"weather"}}, "what's the Weather like", 0, true},
		{"keyword miss", Activation{Kind: ActivationKeyword, Keywords: []string{"weather"}}, "hello there", 0, false},
		{"keyword empty list", Activation{Kind: ActivationKeyword}, "hello", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.activation.Matches(tc.transcript, tc.draw); got != tc.want {
				t.Errorf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCatalogUsingFiltersByPolicy(t *testing.T) {
	cat := NewCatalog()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(cat.Register("always_on", Info{Activation: Activation{Kind: ActivationAlways}}, NopFactory))
	must(cat.Register("hidden", Info{Activation: Activation{Kind: ActivationNever}}, NopFactory))
	must(cat.Register("lucky", Info{Activation: Activation{Kind: ActivationRandom, Probability: 0.5}}, NopFactory))
	must(cat.Register("weather", Info{Activation: Activation{Kind: ActivationKeyword, Keywords: []string{"rain"}}}, NopFactory))

	using := cat.Using("will it rain tomorrow", func() float64 { return 0.1 })
	for _, want := range []string{"always_on", "lucky", "weather"} {
		if _, ok := using[want]; !ok {
			t.Errorf("action %q missing from Using", want)
		}
	}
	if _, ok := using["hidden"]; ok {
		t.Error("never-activated action offered")
	}

	using = cat.Using("hello", func() float64 { return 0.9 })
	if _, ok := using["lucky"]; ok {
		t.Error("random action passed a failing draw")
	}
	if _, ok := using["weather"]; ok {
		t.Error("keyword action offered without its keyword")
	}
}

func TestCatalogCreateHandler(t *testing.T) {
	cat := NewCatalog()
	var seen Payload
	err := cat.Register("poke", Info{}, func(p Payload) (Handler, error) {
		seen = p
		return HandlerFunc(func(context.Context) (Result, error) {
			return Result{OK: true, Text: "poked"}, nil
		}), nil
	})
	if err != nil {
		t.Fatal(err)
	}

	handler, err := cat.CreateHandler("poke", Payload{StreamID: "s1", Reasoning: "because"})
	if err != nil {
		t.Fatal(err)
	}
	if seen.StreamID != "s1" {
		t.Errorf("factory payload = %+v", seen)
	}
	res, err := handler.Execute(context.Background())
	if err != nil || !res.OK || res.Text != "poked" {
		t.Errorf("Execute = %+v, %v", res, err)
	}

	if _, err := cat.CreateHandler("ghost", Payload{}); err == nil {
		t.Error("unknown action built a handler")
	}
}

func TestNopFactoryEchoesReasoning(t *testing.T) {
	handler, err := NopFactory(Payload{Reasoning: "just checking in"})
	if err != nil {
		t.Fatal(err)
	}
	res, err := handler.Execute(context.Background())
	if err != nil || !res.OK || res.Text != "just checking in" {
		t.Errorf("Execute = %+v, %v", res, err)
	}
}

func TestCatalogAvailableIsACopy(t *testing.T) {
	cat := NewCatalog()
	if err := cat.Register("poke", Info{Parameters: map[string]string{"who": "target"}}, NopFactory); err != nil {
		t.Fatal(err)
	}
	available := cat.Available()
	available["poke"].Parameters["who"] = "mutated"

	if cat.Available()["poke"].Parameters["who"] != "target" {
		t.Error("Available leaked internal state")
	}
}

package config

import "testing"

func TestExpandEnv_SetVar(t *testing.T) {
	t.Setenv("TEST_VAR", "hello")

	got := ExpandEnv("value: ${TEST_VAR}")
	want := "value: hello"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExpandEnv_UnsetVar(t *testing.T) {
	got := ExpandEnv("value: ${UNSET_VAR_12345}")
	want := "value: "
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExpandEnv_DefaultUsedWhenUnset(t *testing.T) {
	got := ExpandEnv("value: ${UNSET_VAR_12345:-fallback}")
	want := "value: fallback"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExpandEnv_DefaultIgnoredWhenSet(t *testing.T) {
	t.Setenv("TEST_VAR", "real")

	got := ExpandEnv("value: ${TEST_VAR:-fallback}")
	want := "value: real"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExpandEnv_MultipleVars(t *testing.T) {
	t.Setenv("HOST_A", "alpha")
	t.Setenv("HOST_B", "beta")

	got := ExpandEnv("${HOST_A}:${HOST_B}")
	want := "alpha:beta"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExpandEnv_DollarWithoutBraces(t *testing.T) {
	t.Setenv("SOME_VAR", "value")

	got := ExpandEnv("path: $SOME_VAR/suffix")
	want := "path: $SOME_VAR/suffix"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExpandEnv_DefaultWithSpecialChars(t *testing.T) {
	got := ExpandEnv("url: ${UNSET_VAR_99999:-https://cache.example.com:8443/path}")
	want := "url: https://cache.example.com:8443/path"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

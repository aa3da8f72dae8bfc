package config

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lsm/agentauth/internal/credential"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func TestLoadSettings_Valid(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, SettingsFileName, `
serverUrl: https://pipelines.example.test/org
rateLimit:
  requestsPerSecond: 5
  burst: 10
`)

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := &Settings{
		ServerURL:   "https://pipelines.example.test/org",
		ListenAddr:  DefaultListenAddr,
		MetricsAddr: DefaultMetricsAddr,
		RateLimit:   RateLimitConfig{RequestsPerSecond: 5, Burst: 10},
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
	u, err := s.Server()
	if err != nil || u.Host != "pipelines.example.test" {
		t.Errorf("Server() = %v, %v", u, err)
	}
}

func TestLoadSettings_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing server", "listenAddr: :1234\n"},
		{"relative server", "serverUrl: /just/a/path\n"},
		{"unsupported scheme", "serverUrl: ftp://example.test\n"},
		{"negative rate", "serverUrl: https://x.test\nrateLimit:\n  requestsPerSecond: -1\n"},
		{"bad yaml", "{{invalid yaml\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), SettingsFileName, tt.content)
			if _, err := LoadSettings(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadSettings_Missing(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), SettingsFileName))
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSaveSettings_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", SettingsFileName)
	in := &Settings{ServerURL: "http://localhost:8080", ListenAddr: ":7000", MetricsAddr: ":7001"}
	if err := SaveSettings(path, in); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	out, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	if err := SaveSettings(path, &Settings{}); err == nil {
		t.Error("expected validation error for empty settings")
	}
}

func TestSettings_CredentialsPath(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{"", filepath.Join("/etc/agent", CredentialsFileName)},
		{"secrets/creds.yaml", filepath.Join("/etc/agent", "secrets/creds.yaml")},
		{"/run/secrets/creds.yaml", "/run/secrets/creds.yaml"},
	}
	for _, tt := range tests {
		s := &Settings{CredentialsFile: tt.file}
		if got := s.CredentialsPath("/etc/agent"); got != tt.want {
			t.Errorf("CredentialsPath(%q) = %s, want %s", tt.file, got, tt.want)
		}
	}
}

func TestSaveCredentials_OwnerOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), CredentialsFileName)
	f := &CredentialFile{Scheme: "OAuthAccessToken", Data: map[string]string{"token": "abc123"}}
	if err := SaveCredentials(path, f); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected 0600, got %o", perm)
	}

	got, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if diff := cmp.Diff(f, got); diff != "" {
		t.Errorf("credential file mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveCredentials_TightensExistingFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), CredentialsFileName, "scheme: OAuthAccessToken\n")
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatal(err)
	}

	var modeAtReplace os.FileMode
	orig := writeFileAtomic
	t.Cleanup(func() { writeFileAtomic = orig })
	writeFileAtomic = func(name string, r io.Reader) error {
		if err := orig(name, r); err != nil {
			return err
		}
		info, err := os.Stat(name)
		if err != nil {
			return err
		}
		modeAtReplace = info.Mode().Perm()
		return nil
	}

	f := &CredentialFile{Scheme: "OAuthAccessToken", Data: map[string]string{"token": "new-secret"}}
	if err := SaveCredentials(path, f); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}
	if modeAtReplace != 0o600 {
		t.Errorf("new secret landed with mode %o, want 600", modeAtReplace)
	}
}

func TestCredentials_Invalid(t *testing.T) {
	dir := t.TempDir()
	if err := SaveCredentials(filepath.Join(dir, "c.yaml"), &CredentialFile{}); err == nil {
		t.Error("expected error saving without scheme")
	}
	path := writeFile(t, dir, "noscheme.yaml", "data:\n  token: abc\n")
	if _, err := LoadCredentials(path); err == nil {
		t.Error("expected error loading without scheme")
	}
	if _, err := LoadCredentials(filepath.Join(dir, "missing.yaml")); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestCredentialFile_DataConversion(t *testing.T) {
	d := credential.NewData(credential.SchemePersonalAccessToken)
	d.Set(credential.KeyToken, "ghp_x")

	f := FromData(d)
	if f.Scheme != string(credential.SchemePersonalAccessToken) || f.Data[credential.KeyToken] != "ghp_x" {
		t.Fatalf("unexpected file %+v", f)
	}

	back, err := f.ToData()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(d.Values(), back.Values()); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
	if back.Scheme() != d.Scheme() {
		t.Errorf("scheme = %s", back.Scheme())
	}

	if _, err := (&CredentialFile{}).ToData(); err == nil {
		t.Error("expected error for empty scheme")
	}
}

func TestDir(t *testing.T) {
	if got, _ := Dir("/explicit"); got != "/explicit" {
		t.Errorf("flag dir ignored: %s", got)
	}
	t.Setenv(DirEnv, "/from/env")
	if got, _ := Dir(""); got != "/from/env" {
		t.Errorf("env dir ignored: %s", got)
	}
	t.Setenv(DirEnv, "")
	t.Setenv("HOME", "/home/runner")
	if got, _ := Dir(""); got != filepath.Join("/home/runner", ".agentauth") {
		t.Errorf("default dir = %s", got)
	}
}

func TestWatch_DetectsChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, CredentialsFileName)
	if err := SaveCredentials(path, &CredentialFile{Scheme: "OAuthAccessToken", Data: map[string]string{"token": "one"}}); err != nil {
		t.Fatal(err)
	}

	w := NewWatcher(path, nil)
	if _, err := w.Load(); err != nil {
		t.Fatalf("initial load: %v", err)
	}

	changed := make(chan *CredentialFile, 10)
	w.OnChange(func(f *CredentialFile) {
		changed <- f
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		_ = w.Watch(done)
	}()

	time.Sleep(100 * time.Millisecond)

	if err := SaveCredentials(path, &CredentialFile{Scheme: "OAuthAccessToken", Data: map[string]string{"token": "two"}}); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case f := <-changed:
			if f != nil && f.Data["token"] == "two" {
				if w.Current().Data["token"] != "two" {
					t.Error("Current() not updated")
				}
				return
			}
		case <-deadline:
			t.Fatal("timeout waiting for config change")
		}
	}
}

func TestWatch_Removal(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, CredentialsFileName, "scheme: OAuthAccessToken\ndata:\n  token: x\n")

	w := NewWatcher(path, nil)
	if _, err := w.Load(); err != nil {
		t.Fatal(err)
	}

	removed := make(chan struct{}, 10)
	w.OnChange(func(f *CredentialFile) {
		if f == nil {
			removed <- struct{}{}
		}
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		_ = w.Watch(done)
	}()

	time.Sleep(100 * time.Millisecond)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	select {
	case <-removed:
		if w.Current() != nil {
			t.Error("expected no current credentials after removal")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for removal")
	}
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, CredentialsFileName, "scheme: OAuthAccessToken\n")

	w := NewWatcher(path, nil)
	called := make(chan struct{}, 10)
	w.OnChange(func(*CredentialFile) { called <- struct{}{} })

	done := make(chan struct{})
	defer close(done)
	go func() {
		_ = w.Watch(done)
	}()

	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, SettingsFileName, "serverUrl: https://x.test\n")

	select {
	case <-called:
		t.Error("unexpected reload for an unrelated file")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatch_InvalidDir(t *testing.T) {
	w := NewWatcher("/nonexistent/path/that/does/not/exist/credentials.yaml", nil)
	done := make(chan struct{})
	close(done)

	if err := w.Watch(done); err == nil {
		t.Error("expected error for invalid directory")
	}
}

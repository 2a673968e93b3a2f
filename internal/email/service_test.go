package email

import "testing"

func TestIsConfigured(t *testing.T) {
	svc := NewService(Config{})
	if svc.IsConfigured() {
		t.Fatal("empty config should not count as configured")
	}

	svc = NewService(Config{Host: "smtp.example.com", Port: "587", From: "noreply@example.com"})
	if !svc.IsConfigured() {
		t.Fatal("full config should count as configured")
	}
}

func TestSendEmailUnconfigured(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.SendEmail([]string{"a@b.c"}, "s", "b"); err == nil {
		t.Fatal("sending without config should fail")
	}
	if err := svc.SendNewResponseNotification("a@b.c", "My form", "resp-1"); err == nil {
		t.Fatal("notification without config should fail")
	}
}

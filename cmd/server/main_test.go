package main

import (
	"testing"

	"shopledger/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", ManagerPIN: "123456"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "739154"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidatePINStrength(t *testing.T) {
	if err := validatePINStrength("777777"); err == nil {
		t.Fatalf("expected all-same-digit PIN to be rejected")
	}
	if err := validatePINStrength("345678"); err == nil {
		t.Fatalf("expected ascending PIN to be rejected")
	}
	if err := validatePINStrength("987654"); err == nil {
		t.Fatalf("expected descending PIN to be rejected")
	}
	if err := validatePINStrength("739154"); err != nil {
		t.Fatalf("expected random PIN to pass, got %v", err)
	}
}

package models

import "testing"

func TestUserPasswordHashing(t *testing.T) {
	u := &User{Username: "teacher1"}
	if err := u.SetPassword("s3cret-pass"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}
	if u.PasswordHash == "s3cret-pass" {
		t.Fatal("password stored in plain text")
	}
	if !u.CheckPassword("s3cret-pass") {
		t.Error("CheckPassword rejected the correct password")
	}
	if u.CheckPassword("wrong-pass") {
		t.Error("CheckPassword accepted a wrong password")
	}
}

package db_test

import (
	"testing"

	"bookcircle/internal/db/dbtest"
	"bookcircle/internal/models"
)

func TestMigrateEnforcesOneVotePerUserAndBook(t *testing.T) {
	conn := dbtest.Open(t)

	if err := conn.Create(&models.BookVote{UserID: 1, BookID: 2}).Error; err != nil {
		t.Fatalf("first vote: %v", err)
	}
	if err := conn.Create(&models.BookVote{UserID: 1, BookID: 2}).Error; err == nil {
		t.Fatalf("expected unique index violation on duplicate vote")
	}
	if err := conn.Create(&models.BookVote{UserID: 2, BookID: 2}).Error; err != nil {
		t.Fatalf("vote by another user: %v", err)
	}
}

func TestMigrateEnforcesUniqueEmail(t *testing.T) {
	conn := dbtest.Open(t)

	u := models.User{FullName: "Ada", Email: "ada@example.com", PasswordHash: "x"}
	if err := conn.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	dup := models.User{FullName: "Other", Email: "ada@example.com", PasswordHash: "y"}
	if err := conn.Create(&dup).Error; err == nil {
		t.Fatalf("expected duplicate email to fail")
	}
}

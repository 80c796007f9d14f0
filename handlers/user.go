package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/huyng1801/diem-danh/models"
	"github.com/huyng1801/diem-danh/repository"
)

// UserHandler manages teacher/staff accounts. These exist so attendance rows
// can carry a recorded_by reference; there is no login surface.
type UserHandler struct {
	UserRepo repository.UserRepositoryInterface
}

func (uh *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
		Role     string `json:"role"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required fields: username, password"})
		return
	}

	user := &models.User{
		Username: strings.TrimSpace(req.Username),
		FullName: req.FullName,
		Role:     req.Role,
		IsActive: true,
	}
	if err := user.SetPassword(req.Password); err != nil {
		log.Printf("Error hashing password for user '%s': %v", req.Username, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create user"})
		return
	}

	if err := uh.UserRepo.Create(user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "Username already exists"})
			return
		}
		log.Printf("Error creating user '%s': %v", req.Username, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create user"})
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (uh *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUintParam(w, r, "user_id")
	if !ok {
		return
	}

	user, err := uh.UserRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		} else {
			log.Printf("Error getting user %d: %v", userID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve user"})
		}
		return
	}

	writeJSON(w, http.StatusOK, user)
}

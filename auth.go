package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	RoleStudent = "student"
	RoleAdmin   = "admin"

	campusEmailDomain = "@ntu.edu.tw"
	maxAdminNameLen   = 10
)

func GenerateToken(userID uint, role string) (string, error) {
	ttl := Config.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(Config.JWTSecret))
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ========================
// STUDENT AUTH
// ========================

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Sex      string `json:"sex" binding:"required"`
	Password string `json:"password" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, validationError("all fields are required"))
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.HasSuffix(email, campusEmailDomain) {
		writeError(c, validationError("email must end with "+campusEmailDomain))
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	user := User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		Sex:          req.Sex,
		Phone:        req.Phone,
		PasswordHash: hash,
	}
	if err := DB.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			writeError(c, newError(KindConflict, "EMAIL_TAKEN", "this email is already registered"))
			return
		}
		writeError(c, storeError("register", err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Signup successful",
		"user":    user,
	})
}

func Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, validationError("email and password are required"))
		return
	}

	var user User
	err := DB.WithContext(c.Request.Context()).
		Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).
		First(&user).Error
	if err != nil && !isNotFound(err) {
		writeError(c, storeError("login", err))
		return
	}
	if err != nil || !checkPassword(user.PasswordHash, req.Password) {
		jsonError(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := GenerateToken(user.ID, RoleStudent)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   token,
		"user": gin.H{
			"id":           user.ID,
			"name":         user.Name,
			"email":        user.Email,
			"sex":          user.Sex,
			"phone":        user.Phone,
			"role":         RoleStudent,
			"registerTime": user.RegisteredAt,
		},
	})
}

// ========================
// ADMIN AUTH
// ========================

type AdminCredentials struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func AdminRegister(c *gin.Context) {
	var req AdminCredentials
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, validationError("name and password are required"))
		return
	}
	name := strings.TrimSpace(req.Name)
	if len([]rune(name)) > maxAdminNameLen {
		writeError(c, validationError("admin name must be at most 10 characters"))
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	admin := AdminUser{Name: name, PasswordHash: hash}
	if err := DB.WithContext(c.Request.Context()).Create(&admin).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			writeError(c, newError(KindConflict, "NAME_TAKEN", "admin name already exists"))
			return
		}
		writeError(c, storeError("admin register", err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"admin":   gin.H{"id": admin.ID, "name": admin.Name, "role": RoleAdmin},
	})
}

func AdminLogin(c *gin.Context) {
	var req AdminCredentials
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, validationError("name and password are required"))
		return
	}

	var admin AdminUser
	err := DB.WithContext(c.Request.Context()).Where("name = ?", strings.TrimSpace(req.Name)).First(&admin).Error
	if err != nil && !isNotFound(err) {
		writeError(c, storeError("admin login", err))
		return
	}
	if err != nil || !checkPassword(admin.PasswordHash, req.Password) {
		jsonError(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := GenerateToken(admin.ID, RoleAdmin)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   token,
		"admin":   gin.H{"id": admin.ID, "name": admin.Name, "role": RoleAdmin},
	})
}

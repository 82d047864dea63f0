package endpoint

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/raihanakbr/lokapasar/middleware"
	"github.com/raihanakbr/lokapasar/model"
	"github.com/raihanakbr/lokapasar/protection"
	"github.com/raihanakbr/lokapasar/util"
	"gorm.io/gorm"
)

var ErrUserEmailAlreadyExists = errors.New("email already exists")

// UpdateUserRequest carries the self-service profile changes. All fields are
// optional but at least one must be set.
type UpdateUserRequest struct {
	Name     string `json:"name" example:"John Doe"`
	Email    string `json:"email" example:"john@example.com"`
	Password string `json:"password" example:"newpassword123"`
}

// AdminUpdateUserRequest extends the profile changes with the staff flag,
// which only the admin path may touch.
type AdminUpdateUserRequest struct {
	UpdateUserRequest
	IsStaff *bool `json:"is_staff"`
}

func (r *UpdateUserRequest) hasChanges() bool {
	return r.Name != "" || r.Email != "" || r.Password != ""
}

// applyEmailChange normalizes the submitted email the same way the login path
// does and rejects it when another account already owns it.
func applyEmailChange(db *gorm.DB, user *model.User, newEmail string) error {
	email := protection.NormalizeIdentifier(newEmail)
	if email == "" || email == user.Email {
		return nil
	}
	var count int64
	if err := db.Model(&model.User{}).Where("email = ? AND id != ?", email, user.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to validate email uniqueness: %w", err)
	}
	if count > 0 {
		return ErrUserEmailAlreadyExists
	}
	user.Email = email
	return nil
}

// applyPasswordChange re-salts and re-hashes the credential on the user row.
func applyPasswordChange(user *model.User, plain string) error {
	salt, err := util.GenerateSalt()
	if err != nil {
		return fmt.Errorf("failed to generate password salt: %w", err)
	}
	hashed, err := util.HashPasswordArgon2(plain, salt)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = hashed
	user.PasswordSalt = salt
	return nil
}

func applyProfileChanges(db *gorm.DB, user *model.User, req *UpdateUserRequest) (passwordChanged bool, err error) {
	if err := applyEmailChange(db, user, req.Email); err != nil {
		return false, err
	}
	if req.Name != "" {
		user.Name = util.NormalizeName(req.Name)
	}
	if req.Password != "" {
		if err := applyPasswordChange(user, req.Password); err != nil {
			return false, err
		}
		passwordChanged = true
	}
	return passwordChanged, nil
}

// invalidateUserSessions removes the user's sessions from both DB and Redis.
func invalidateUserSessions(db *gorm.DB, userID uint) {
	_ = db.Where("user_id = ?", userID).Delete(&model.Session{}).Error
	_ = util.InvalidateUserSessions(userID)
}

// saveProfileChanges persists the changes and handles the fallout of a
// password rotation: every existing session is invalidated and the change is
// written to the security log.
func saveProfileChanges(c *gin.Context, db *gorm.DB, user *model.User, req *UpdateUserRequest) bool {
	passwordChanged, err := applyProfileChanges(db, user, req)
	if err != nil {
		if errors.Is(err, ErrUserEmailAlreadyExists) {
			util.CallUserError(c, util.APIErrorParams{Msg: "Email already exists", Err: err})
		} else {
			util.CallServerError(c, util.APIErrorParams{Msg: "Failed to update user fields", Err: err})
		}
		return false
	}

	if err := db.Save(user).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to update user", Err: err})
		return false
	}

	if passwordChanged {
		invalidateUserSessions(db, user.ID)
		util.LogSecurityEvent(util.SecurityEvent{
			EventType: util.EventPasswordChanged,
			UserID:    fmt.Sprintf("%d", user.ID),
			Email:     user.Email,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			Message:   "Password changed, all sessions invalidated",
		})
	}

	util.CallSuccessOK(c, util.APISuccessParams{Msg: "User updated successfully", Data: user})
	return true
}

// UpdateUser godoc
// @Summary      Update current user profile
// @Description  Update authenticated user's name, email, and/or password
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        request body UpdateUserRequest true "Update details"
// @Success      200 {object} util.APIResponse "Update successful"
// @Failure      400 {object} util.APIResponse "Invalid request or email already exists"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /user [patch]
func UpdateUser(c *gin.Context) {
	var req UpdateUserRequest
	if !bindJSONOrRespond(c, &req, "Invalid request payload") {
		return
	}
	if !req.hasChanges() {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "At least one field (name, email, or password) must be provided",
			Err: fmt.Errorf("no fields to update"),
		})
		return
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	userID, ok := middleware.GetUserID(c)
	if !ok {
		util.CallUserNotAuthorized(c, util.APIErrorParams{Msg: "User not authenticated", Err: fmt.Errorf("user id not found in context")})
		return
	}

	user, ok := findUserOrRespond(c, db, userID)
	if !ok {
		return
	}

	saveProfileChanges(c, db, user, &req)
}

// AdminUpdateUser godoc
// @Summary      Update another user's account (staff only)
// @Description  Staff can update another user's profile fields and staff flag
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "User ID"
// @Param        request body AdminUpdateUserRequest true "Update details"
// @Success      200 {object} util.APIResponse "Update successful"
// @Failure      400 {object} util.APIResponse "Invalid request or email already exists"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      404 {object} util.APIResponse "User not found"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /user/{id} [patch]
func AdminUpdateUser(c *gin.Context) {
	uid, err := parseIDParam(c)
	if err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: err.Error(), Err: err})
		return
	}

	var req AdminUpdateUserRequest
	if !bindJSONOrRespond(c, &req, "Invalid request payload") {
		return
	}
	if !req.hasChanges() && req.IsStaff == nil {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "At least one field (name, email, password, or is_staff) must be provided",
			Err: fmt.Errorf("no fields to update"),
		})
		return
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	user, ok := findUserOrRespond(c, db, uid)
	if !ok {
		return
	}

	if req.IsStaff != nil && *req.IsStaff != user.IsStaff {
		user.IsStaff = *req.IsStaff
		actorID, _ := middleware.GetUserID(c)
		util.LogSecurityEvent(util.SecurityEvent{
			EventType: util.EventStaffChanged,
			UserID:    fmt.Sprintf("%d", user.ID),
			Email:     user.Email,
			IP:        c.ClientIP(),
			Message:   fmt.Sprintf("Staff flag set to %t by user %d", user.IsStaff, actorID),
		})
	}

	saveProfileChanges(c, db, user, &req.UpdateUserRequest)
}

// ListUsers godoc
// @Summary      List users (staff only)
// @Description  Cursor-paginated user listing with optional name/email keyword search
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        limit query int false "Limit number of results (default 10, max 100)"
// @Param        cursor query int false "Cursor for pagination (user ID)"
// @Param        keyword query string false "Search keyword for name or email"
// @Success      200 {object} util.APIResponse{data=object} "Users retrieved"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /user [get]
func ListUsers(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	limit, cursor, offset := parsePaginationParams(c)

	query := db.Model(&model.User{})
	if keyword := c.Query("keyword"); keyword != "" {
		kw := "%" + keyword + "%"
		query = query.Where("name LIKE ? OR email LIKE ?", kw, kw)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to count users", Err: err})
		return
	}

	query = applyPaginationQuery(query, cursor, offset)
	var users []model.User
	if err := query.Order("id ASC").Limit(limit + 1).Find(&users).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve users", Err: err})
		return
	}

	hasMore := len(users) > limit
	if hasMore {
		users = users[:limit]
	}
	var nextCursor *uint
	if hasMore {
		lastID := users[len(users)-1].ID
		nextCursor = &lastID
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg: "Users retrieved",
		Data: map[string]interface{}{
			"users":         users,
			"total":         total,
			"total_fetched": len(users),
			"has_more":      hasMore,
			"next_cursor":   nextCursor,
		},
	})
}

// GetUserInfo godoc
// @Summary      Get user info (staff only)
// @Description  Retrieve a user's account by ID
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "User ID"
// @Success      200 {object} util.APIResponse "User retrieved"
// @Failure      400 {object} util.APIResponse "Invalid user id"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      404 {object} util.APIResponse "User not found"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /user/{id} [get]
func GetUserInfo(c *gin.Context) {
	uid, err := parseIDParam(c)
	if err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: err.Error(), Err: err})
		return
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	user, ok := findUserOrRespond(c, db, uid)
	if !ok {
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{Msg: "User retrieved", Data: user})
}

// DeleteUser godoc
// @Summary      Delete user (staff only)
// @Description  Soft-delete a user by ID and drop all of their sessions
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "User ID"
// @Success      200 {object} util.APIResponse "User deleted"
// @Failure      400 {object} util.APIResponse "Invalid user id"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      404 {object} util.APIResponse "User not found"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /user/{id} [delete]
func DeleteUser(c *gin.Context) {
	uid, err := parseIDParam(c)
	if err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: err.Error(), Err: err})
		return
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	var deleted model.User
	txErr := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&deleted, uid).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", uid).Delete(&model.Session{}).Error; err != nil {
			return err
		}
		return tx.Delete(&deleted).Error
	})
	if txErr != nil {
		if errors.Is(txErr, gorm.ErrRecordNotFound) {
			util.CallErrorNotFound(c, util.APIErrorParams{Msg: "User not found", Err: txErr})
			return
		}
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to delete user", Err: txErr})
		return
	}

	_ = util.InvalidateUserSessions(uid)

	actorID, _ := middleware.GetUserID(c)
	util.LogSecurityEvent(util.SecurityEvent{
		EventType: util.EventUserDeleted,
		UserID:    fmt.Sprintf("%d", deleted.ID),
		Email:     deleted.Email,
		IP:        c.ClientIP(),
		Message:   fmt.Sprintf("Account deleted by user %d", actorID),
	})

	util.CallSuccessOK(c, util.APISuccessParams{Msg: "User deleted"})
}

func findUserOrRespond(c *gin.Context, db *gorm.DB, userID uint) (*model.User, bool) {
	var user model.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.CallErrorNotFound(c, util.APIErrorParams{Msg: "User not found", Err: err})
			return nil, false
		}
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve user", Err: err})
		return nil, false
	}
	return &user, true
}

// parseIDParam parses the "id" path parameter into a positive uint.
func parseIDParam(c *gin.Context) (uint, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("user ID must be a valid integer")
	}
	if id <= 0 {
		return 0, fmt.Errorf("user ID must be a positive integer")
	}
	return uint(id), nil
}

// parsePaginationParams extracts limit, cursor, and offset query parameters,
// applying the defaults shared by every listing endpoint.
func parsePaginationParams(c *gin.Context) (limit int, cursor uint, offset int) {
	limit = parsePositiveInt(c.Query("limit"), 10, 100)
	cursor = parseUintQuery(c, "cursor")
	offset = parsePositiveInt(c.Query("offset"), 0, 0)
	return limit, cursor, offset
}

// parsePositiveInt parses a positive integer, falling back to defaultVal on
// missing or invalid input and capping at max when max > 0.
func parsePositiveInt(q string, defaultVal, max int) int {
	if q == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(q)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

// parseUintQuery parses an unsigned integer query parameter. Zero is treated
// as missing since cursors are positive row IDs.
func parseUintQuery(c *gin.Context, name string) uint {
	s := c.Query(name)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil || v == 0 {
		return 0
	}
	return uint(v)
}

// applyPaginationQuery applies cursor-based pagination when a cursor is set,
// falling back to a plain offset otherwise.
func applyPaginationQuery(query *gorm.DB, cursor uint, offset int) *gorm.DB {
	if cursor > 0 {
		return query.Where("id > ?", cursor)
	}
	if offset > 0 {
		return query.Offset(offset)
	}
	return query
}

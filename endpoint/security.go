package endpoint

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/raihanakbr/lokapasar/model"
	"github.com/raihanakbr/lokapasar/util"
	"gorm.io/gorm"
)

// ListLoginAttempts godoc
// @Summary      List login attempts (staff only)
// @Description  Get a paginated list of login attempt ledger rows, optionally filtered by address or identifier
// @Tags         Security
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        limit query int false "Limit number of results (default 10, max 100)"
// @Param        cursor query int false "Cursor for pagination (attempt ID)"
// @Param        ip query string false "Filter by client address"
// @Param        identifier query string false "Filter by login identifier"
// @Success      200 {object} util.APIResponse "Attempts retrieved"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /security/attempts [get]
func ListLoginAttempts(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	limit, cursor, offset := parsePaginationParams(c)

	query := db.Model(&model.LoginAttempt{})
	if ip := c.Query("ip"); ip != "" {
		query = query.Where("ip_address = ?", ip)
	}
	if ident := c.Query("identifier"); ident != "" {
		query = query.Where("user_identifier = ?", ident)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to count login attempts", Err: err})
		return
	}

	query = applyPaginationQuery(query, cursor, offset)
	var attempts []model.LoginAttempt
	if err := query.Order("id ASC").Limit(limit + 1).Find(&attempts).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve login attempts", Err: err})
		return
	}

	hasMore := len(attempts) > limit
	if hasMore {
		attempts = attempts[:limit]
	}
	var nextCursor *uint
	if hasMore {
		lastID := attempts[len(attempts)-1].ID
		nextCursor = &lastID
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg: "Login attempts retrieved",
		Data: map[string]interface{}{
			"attempts":      attempts,
			"total":         total,
			"total_fetched": len(attempts),
			"has_more":      hasMore,
			"next_cursor":   nextCursor,
		},
	})
}

// ListIPBlocks godoc
// @Summary      List address blocks (staff only)
// @Description  Get a paginated list of address block registry rows; active=true narrows to currently enforced blocks
// @Tags         Security
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        limit query int false "Limit number of results (default 10, max 100)"
// @Param        cursor query int false "Cursor for pagination (block ID)"
// @Param        active query bool false "Only currently active blocks"
// @Success      200 {object} util.APIResponse "Blocks retrieved"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /security/blocks [get]
func ListIPBlocks(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	limit, cursor, offset := parsePaginationParams(c)

	query := db.Model(&model.IPBlock{})
	if c.Query("active") == "true" {
		query = query.Where("unblocked_at IS NULL AND blocked_until > ?", time.Now())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to count address blocks", Err: err})
		return
	}

	query = applyPaginationQuery(query, cursor, offset)
	var blocks []model.IPBlock
	if err := query.Order("id ASC").Limit(limit + 1).Find(&blocks).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve address blocks", Err: err})
		return
	}

	hasMore := len(blocks) > limit
	if hasMore {
		blocks = blocks[:limit]
	}
	var nextCursor *uint
	if hasMore {
		lastID := blocks[len(blocks)-1].ID
		nextCursor = &lastID
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg: "Address blocks retrieved",
		Data: map[string]interface{}{
			"blocks":        blocks,
			"total":         total,
			"total_fetched": len(blocks),
			"has_more":      hasMore,
			"next_cursor":   nextCursor,
		},
	})
}

// ListIPEvents godoc
// @Summary      List block/unblock events (staff only)
// @Description  Get a paginated list of the block event log, optionally filtered by action or address
// @Tags         Security
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        limit query int false "Limit number of results (default 10, max 100)"
// @Param        cursor query int false "Cursor for pagination (event ID)"
// @Param        action query string false "Filter by action (block or unblock)"
// @Param        ip query string false "Filter by address"
// @Success      200 {object} util.APIResponse "Events retrieved"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /security/events [get]
func ListIPEvents(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	limit, cursor, offset := parsePaginationParams(c)

	query := db.Model(&model.IPBlockEvent{})
	if action := c.Query("action"); action != "" {
		if action != model.BlockActionBlock && action != model.BlockActionUnblock {
			util.CallUserError(c, util.APIErrorParams{
				Msg: "Invalid action filter",
				Err: fmt.Errorf("action must be %q or %q", model.BlockActionBlock, model.BlockActionUnblock),
			})
			return
		}
		query = query.Where("action = ?", action)
	}
	if ip := c.Query("ip"); ip != "" {
		query = query.Where("ip_address = ?", ip)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to count block events", Err: err})
		return
	}

	query = applyPaginationQuery(query, cursor, offset)
	var events []model.IPBlockEvent
	if err := query.Order("id ASC").Limit(limit + 1).Find(&events).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve block events", Err: err})
		return
	}

	hasMore := len(events) > limit
	if hasMore {
		events = events[:limit]
	}
	var nextCursor *uint
	if hasMore {
		lastID := events[len(events)-1].ID
		nextCursor = &lastID
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg: "Block events retrieved",
		Data: map[string]interface{}{
			"events":        events,
			"total":         total,
			"total_fetched": len(events),
			"has_more":      hasMore,
			"next_cursor":   nextCursor,
		},
	})
}

// UnblockIP godoc
// @Summary      Manually lift an address block (staff only)
// @Description  Clears the active block for an address and records a manual unblock event
// @Tags         Security
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        ip path string true "Blocked address"
// @Success      200 {object} util.APIResponse "Address unblocked"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      404 {object} util.APIResponse "No active block for address"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /security/blocks/{ip} [delete]
func UnblockIP(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	address := c.Param("ip")
	if address == "" {
		util.CallUserError(c, util.APIErrorParams{Msg: "Address is required", Err: fmt.Errorf("empty ip parameter")})
		return
	}

	now := time.Now()
	err := db.Transaction(func(tx *gorm.DB) error {
		var block model.IPBlock
		if err := tx.Where("ip_address = ? AND unblocked_at IS NULL", address).First(&block).Error; err != nil {
			return err
		}

		if err := tx.Model(&block).Update("unblocked_at", now).Error; err != nil {
			return err
		}

		event := model.IPBlockEvent{
			Action:         model.BlockActionUnblock,
			IPAddress:      address,
			Reason:         model.UnblockReasonManual,
			UserIdentifier: block.LastIdentifier,
		}
		return tx.Create(&event).Error
	})
	if err == gorm.ErrRecordNotFound {
		util.CallErrorNotFound(c, util.APIErrorParams{
			Msg: "No active block for address",
			Err: fmt.Errorf("address is not blocked"),
		})
		return
	}
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to unblock address", Err: err})
		return
	}

	util.LogIPUnblocked(address, model.UnblockReasonManual)
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Address unblocked"})
}

package dbctx

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/classr/internal/platform/ctxutil"
)

// Context carries the caller's context and, inside a unit of work, the open
// transaction every repo call should join.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

func Of(ctx context.Context) Context { return Context{Ctx: ctx} }

// Conn returns the transaction when one is open, else db, bound to Ctx.
func (c Context) Conn(db *gorm.DB) *gorm.DB {
	conn := c.Tx
	if conn == nil {
		conn = db
	}
	return conn.WithContext(ctxutil.Default(c.Ctx))
}

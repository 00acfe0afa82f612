package controllers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// firstHeaderValue returns the first non-empty header among keys.
func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(c.Get(k))
		if v != "" {
			return v
		}
	}
	return ""
}

// clientIP resolves the originating client address behind proxies. Cloudflare
// puts the real client in CF-Connecting-IP; otherwise the first entry of
// X-Forwarded-For is the original client.
func clientIP(c *fiber.Ctx) string {
	if cf := strings.TrimSpace(c.Get("CF-Connecting-IP")); cf != "" {
		return cf
	}
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	return c.IP()
}

// orgIDParam parses the :orgId route parameter.
func orgIDParam(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("orgId"), 10, 32)
	if err != nil || id == 0 {
		return 0, fiber.ErrBadRequest
	}
	return uint(id), nil
}

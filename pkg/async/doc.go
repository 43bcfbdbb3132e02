// Package async runs fire-and-forget work off the request path.
//
// SafeGo detaches the task from the caller's cancellation, bounds it with a
// timeout, recovers panics and logs failures:
//
//	async.SafeGo(r.Context(), logger, 30*time.Second, "require 2fa", func(ctx context.Context) error {
//		return registry.RequireTwoFactor(ctx, pkg, token, otp)
//	})
package async

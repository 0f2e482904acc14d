package jobs

import (
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/okemsocial/okem_social/signaling"
	"github.com/robfig/cron/v3"
)

// RingTimeoutSpec is how often unanswered calls are swept.
const RingTimeoutSpec = "@every 5s"

// ExpireRingingCalls returns the cron job that ends calls nobody answered.
func ExpireRingingCalls(calls *signaling.CallManager) func() {
	return func() {
		if n := calls.ExpirePending(time.Now()); n > 0 {
			log.Infof("Running job: ExpireRingingCalls... %d call(s) timed out", n)
		}
	}
}

// Schedule registers every realtime job on c.
func Schedule(c *cron.Cron, calls *signaling.CallManager) error {
	if _, err := c.AddFunc(RingTimeoutSpec, ExpireRingingCalls(calls)); err != nil {
		return err
	}
	return nil
}

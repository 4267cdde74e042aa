package sink_test

import (
	"context"

	"deepresearch.app/orchestrator/internal/domain"
	"deepresearch.app/orchestrator/internal/sink"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
)

var _ = Describe("RedisSink", func() {
	It("returns the publish error so the caller can mark the sink disconnected", func() {
		client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
		defer client.Close()

		s := sink.NewRedisSink(client, "research:run:123")
		err := s.Emit(context.Background(), domain.NewFinish("x"))

		Expect(err).To(HaveOccurred())
	})

	It("is a no-op once marked disconnected", func() {
		client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
		defer client.Close()

		s := sink.NewRedisSink(client, "research:run:123")
		s.MarkDisconnected()

		err := s.Emit(context.Background(), domain.NewFinish("x"))
		Expect(err).NotTo(HaveOccurred())
	})
})

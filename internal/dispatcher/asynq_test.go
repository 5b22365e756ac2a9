package dispatcher_test

import (
	"context"
	"os"

	"github.com/dcm-project/service-orchestrator/internal/config"
	"github.com/dcm-project/service-orchestrator/internal/dispatcher"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("AsynqDispatcher", func() {
	It("delivers tasks through redis", func() {
		addr := os.Getenv("TEST_REDIS_ADDR")
		if addr == "" {
			Skip("TEST_REDIS_ADDR not set")
		}

		d := dispatcher.NewAsynqDispatcher(&config.DispatcherConfig{RedisAddr: addr, Workers: 1})
		received := make(chan dispatcher.Task, 1)
		Expect(d.Start(func(_ context.Context, task dispatcher.Task) error {
			received <- task
			return nil
		})).To(Succeed())
		defer d.Stop()

		id, err := d.Dispatch(context.Background(), dispatcher.Task{
			ID:        uuid.NewString(),
			Kind:      dispatcher.KindUpdate,
			ServiceID: "repo",
			Files:     map[string]string{"Dockerfile": "FROM scratch"},
		})
		Expect(err).NotTo(HaveOccurred())

		var task dispatcher.Task
		Eventually(received, "10s").Should(Receive(&task))
		Expect(task.ID).To(Equal(id))
		Expect(task.Files).To(HaveKeyWithValue("Dockerfile", "FROM scratch"))
	})
})

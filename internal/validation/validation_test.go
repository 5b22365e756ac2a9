package validation_test

import (
	"context"
	"errors"

	"github.com/dcm-project/service-orchestrator/internal/store/model"
	"github.com/dcm-project/service-orchestrator/internal/validation"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type portTable map[int]string

func (t portTable) PortOwner(_ context.Context, port int) (string, error) {
	return t[port], nil
}

type failingLookup struct{}

func (failingLookup) PortOwner(context.Context, int) (string, error) {
	return "", errors.New("db down")
}

var _ = Describe("ParsePortMapping", func() {
	It("parses a single pair", func() {
		mappings, err := validation.ParsePortMapping("8080:80")

		Expect(err).NotTo(HaveOccurred())
		Expect(mappings).To(Equal([]model.PortMapping{{External: 8080, Internal: 80}}))
	})

	It("parses a list and tolerates blanks around pairs", func() {
		mappings, err := validation.ParsePortMapping("8080:80, 8443:443")

		Expect(err).NotTo(HaveOccurred())
		Expect(mappings).To(HaveLen(2))
		Expect(mappings[1]).To(Equal(model.PortMapping{External: 8443, Internal: 443}))
		Expect(validation.FormatPortMapping(mappings)).To(Equal("8080:80,8443:443"))
	})

	DescribeTable("rejects malformed specs",
		func(spec string) {
			_, err := validation.ParsePortMapping(spec)
			Expect(err).To(MatchError(validation.ErrInvalidPortMapping))
		},
		Entry("empty", ""),
		Entry("single number", "8080"),
		Entry("three segments", "1:2:3"),
		Entry("letters", "http:80"),
		Entry("trailing comma", "8080:80,"),
		Entry("negative", "-1:80"),
		Entry("zero port", "0:80"),
		Entry("out of range", "70000:80"),
		Entry("duplicate external port", "8080:80,8080:81"),
	)
})

var _ = Describe("CheckPortAvailability", func() {
	ctx := context.Background()
	mappings := []model.PortMapping{{External: 9000, Internal: 80}, {External: 9001, Internal: 81}}

	It("accepts free ports", func() {
		Expect(validation.CheckPortAvailability(ctx, mappings, portTable{}, "")).To(Succeed())
	})

	It("names the conflicting port", func() {
		err := validation.CheckPortAvailability(ctx, mappings, portTable{9001: "other"}, "")

		var conflict *validation.PortConflictError
		Expect(errors.As(err, &conflict)).To(BeTrue())
		Expect(conflict.Port).To(Equal(9001))
		Expect(conflict.Owner).To(Equal("other"))
	})

	It("ignores ports held by the service itself", func() {
		Expect(validation.CheckPortAvailability(ctx, mappings, portTable{9000: "me"}, "me")).To(Succeed())
	})

	It("propagates lookup failures", func() {
		Expect(validation.CheckPortAvailability(ctx, mappings, failingLookup{}, "")).To(MatchError("db down"))
	})
})

var _ = Describe("ParseVolumeMappings", func() {
	It("parses entries and drops blanks", func() {
		mappings, err := validation.ParseVolumeMappings([]string{"/data:/var/lib/data", "  ", ""})

		Expect(err).NotTo(HaveOccurred())
		Expect(mappings).To(Equal([]model.VolumeMapping{{Host: "/data", Container: "/var/lib/data"}}))
	})

	It("returns nothing for an empty list", func() {
		mappings, err := validation.ParseVolumeMappings(nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(mappings).To(BeEmpty())
	})

	DescribeTable("rejects malformed entries",
		func(spec string) {
			_, err := validation.ParseVolumeMappings([]string{"/ok:/ok", spec})
			Expect(err).To(MatchError(validation.ErrInvalidVolumeMapping))
		},
		Entry("no colon", "/data"),
		Entry("empty host", ":/data"),
		Entry("empty container", "/data:"),
		Entry("mode suffix", "/data:/data:ro"),
	)
})

var _ = Describe("ParseMode", func() {
	DescribeTable("accepts names and legacy aliases",
		func(input string, expected model.Mode) {
			mode, err := validation.ParseMode(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(mode).To(Equal(expected))
		},
		Entry("build from source", "BUILD_FROM_SOURCE", model.ModeBuildFromSource),
		Entry("lower case", "compose_stack", model.ModeComposeStack),
		Entry("prebuilt", "PREBUILT_IMAGE", model.ModePrebuiltImage),
		Entry("docker alias", "docker", model.ModeBuildFromSource),
		Entry("docker-compose alias", "docker-compose", model.ModeComposeStack),
		Entry("dockerfile alias", "dockerfile", model.ModePrebuiltImage),
	)

	It("rejects unknown modes", func() {
		_, err := validation.ParseMode("kubernetes")
		Expect(err).To(MatchError(validation.ErrUnsupportedMode))
	})
})

var _ = Describe("ValidateWorkspaceRoot", func() {
	DescribeTable("accepts relative paths",
		func(root string) {
			Expect(validation.ValidateWorkspaceRoot(root)).To(Succeed())
		},
		Entry("empty", ""),
		Entry("dot", "."),
		Entry("nested", "deploy/docker"),
	)

	DescribeTable("rejects escaping paths",
		func(root string) {
			Expect(validation.ValidateWorkspaceRoot(root)).To(MatchError(validation.ErrInvalidWorkspaceRoot))
		},
		Entry("parent", "../other"),
		Entry("absolute", "/etc"),
		Entry("hidden parent", "a/../../b"),
		Entry("spaces", "my dir"),
	)
})

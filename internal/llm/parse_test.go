package llm

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("extractJSONObject", func() {
	It("returns a bare JSON object unchanged", func() {
		out, err := extractJSONObject(`{"a":1}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(`{"a":1}`))
	})

	It("strips markdown fences", func() {
		out, err := extractJSONObject("```json\n{\"a\":1}\n```")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(`{"a":1}`))
	})

	It("ignores commentary around the object", func() {
		out, err := extractJSONObject("Here is the result:\n{\"a\":1}\nHope that helps!")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(`{"a":1}`))
	})

	It("keeps nested braces intact", func() {
		out, err := extractJSONObject(`{"a":{"b":2}}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(`{"a":{"b":2}}`))
	})

	It("errors when no object is present", func() {
		_, err := extractJSONObject("I could not read the receipt.")
		Expect(err).To(HaveOccurred())
	})
})

package protocol_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/ninep/protocol"
)

func mustEncode(m protocol.Message) []byte {
	frame, err := protocol.Encode(m, bigMsize)
	Expect(err).To(Succeed())
	return frame
}

var _ = Describe("FrameReader", func() {
	var walk []byte

	BeforeEach(func() {
		walk = mustEncode(&protocol.Twalk{Tag: 3, Fid: 1, Newfid: 2, Wname: []string{"a", "bb", "ccc"}})
	})

	It("yields nothing until a whole frame has arrived", func() {
		r := protocol.NewFrameReader()

		frames, err := r.Feed(walk[:len(walk)-1])
		Expect(err).To(Succeed())
		Expect(frames).To(BeEmpty())
		Expect(r.Buffered()).To(Equal(len(walk) - 1))

		frames, err = r.Feed(walk[len(walk)-1:])
		Expect(err).To(Succeed())
		Expect(frames).To(Equal([][]byte{walk}))
		Expect(r.Buffered()).To(BeZero())
	})

	It("reassembles a frame split at every offset", func() {
		for i := 1; i < len(walk); i++ {
			r := protocol.NewFrameReader()

			first, err := r.Feed(walk[:i])
			Expect(err).To(Succeed())
			Expect(first).To(BeEmpty())

			second, err := r.Feed(walk[i:])
			Expect(err).To(Succeed())
			Expect(second).To(Equal([][]byte{walk}), "split at %d", i)
		}
	})

	It("reassembles a frame split into three chunks", func() {
		for i := 1; i < len(walk)-1; i++ {
			for j := i + 1; j < len(walk); j++ {
				r := protocol.NewFrameReader()

				var frames [][]byte
				for _, chunk := range [][]byte{walk[:i], walk[i:j], walk[j:]} {
					got, err := r.Feed(chunk)
					Expect(err).To(Succeed())
					frames = append(frames, got...)
				}

				Expect(frames).To(Equal([][]byte{walk}), "split at %d and %d", i, j)
			}
		}
	})

	It("handles one byte at a time", func() {
		r := protocol.NewFrameReader()

		var frames [][]byte
		for i := range walk {
			got, err := r.Feed(walk[i : i+1])
			Expect(err).To(Succeed())
			frames = append(frames, got...)
		}

		Expect(frames).To(Equal([][]byte{walk}))
	})

	It("drains every frame in a chunk and keeps the remainder", func() {
		clunk := mustEncode(&protocol.Tclunk{Tag: 4, Fid: 2})
		flush := mustEncode(&protocol.Rflush{Tag: 5})

		var chunk []byte
		chunk = append(chunk, walk...)
		chunk = append(chunk, clunk...)
		chunk = append(chunk, flush...)
		chunk = append(chunk, walk[:5]...)

		r := protocol.NewFrameReader()
		frames, err := r.Feed(chunk)
		Expect(err).To(Succeed())
		Expect(frames).To(Equal([][]byte{walk, clunk, flush}))
		Expect(r.Buffered()).To(Equal(5))

		frames, err = r.Feed(walk[5:])
		Expect(err).To(Succeed())
		Expect(frames).To(Equal([][]byte{walk}))
	})

	It("returns frames that do not alias later input", func() {
		r := protocol.NewFrameReader()

		frames, err := r.Feed(append(append([]byte{}, walk...), walk...))
		Expect(err).To(Succeed())
		Expect(frames).To(HaveLen(2))

		frames[0][4] = 0
		Expect(frames[1]).To(Equal(walk))
	})

	It("rejects a zero length frame without consuming it", func() {
		r := protocol.NewFrameReader()

		_, err := r.Feed([]byte{0, 0, 0, 0, 1, 2, 3})
		Expect(errors.Is(err, protocol.ErrInvalidFrameLength)).To(BeTrue())
		Expect(r.Buffered()).To(Equal(7))

		_, err = r.Feed(nil)
		Expect(errors.Is(err, protocol.ErrInvalidFrameLength)).To(BeTrue())
	})

	It("rejects a length smaller than the header", func() {
		r := protocol.NewFrameReader()

		_, err := r.Feed([]byte{6, 0, 0, 0})
		Expect(errors.Is(err, protocol.ErrInvalidFrameLength)).To(BeTrue())
	})

	It("returns the frames completed before an invalid one", func() {
		r := protocol.NewFrameReader()

		frames, err := r.Feed(append(append([]byte{}, walk...), 2, 0, 0, 0))
		Expect(errors.Is(err, protocol.ErrInvalidFrameLength)).To(BeTrue())
		Expect(frames).To(Equal([][]byte{walk}))
	})

	It("rejects frames above the size limit", func() {
		r := protocol.NewFrameReader()
		r.SetMaxFrameSize(uint32(len(walk) - 1))

		_, err := r.Feed(walk)
		Expect(errors.Is(err, protocol.ErrFrameTooLarge)).To(BeTrue())
	})

	It("forgets partial input on Reset", func() {
		r := protocol.NewFrameReader()

		_, err := r.Feed(walk[:3])
		Expect(err).To(Succeed())

		r.Reset()
		Expect(r.Buffered()).To(BeZero())

		frames, err := r.Feed(walk)
		Expect(err).To(Succeed())
		Expect(frames).To(Equal([][]byte{walk}))
	})
})

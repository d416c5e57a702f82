package storage_test

import (
	"context"
	"strconv"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/ninep/storage"
)

var _ = Describe("storage / InmemoryStore", func() {
	var (
		ctx   context.Context
		store *storage.InmemoryStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = storage.NewInmemoryStore()
	})

	AfterEach(func() {
		store.Close()
	})

	Describe("Close()", func() {
		It("does not panic when closed twice", func() {
			Expect(func() { store.Close() }).NotTo(Panic())
			Expect(func() { store.Close() }).NotTo(Panic())
		})

		It("closes update channels", func() {
			updateChan := store.ListenToUpdates()
			store.Close()

			_, ok := <-updateChan
			Expect(ok).To(BeFalse())
		})
	})

	It("an empty inmemory store equals {}", func() {
		value, err := store.Backup()
		Expect(err).To(Succeed())
		Expect(string(value)).To(Equal(`{}`))
	})

	Describe("Restore()", func() {
		It("rejects documents that are not objects", func() {
			Expect(store.Restore([]byte(`[1,2]`))).To(MatchError(storage.ErrInvalidDocument))
			Expect(store.Restore([]byte(`{"a":`))).To(MatchError(storage.ErrInvalidDocument))
		})

		It("replaces the document", func() {
			Expect(store.Restore([]byte(`{"a":1}`))).To(Succeed())

			value, err := store.Backup()
			Expect(err).To(Succeed())
			Expect(string(value)).To(Equal(`{"a":1}`))
		})
	})

	Describe("Set() / Get()", func() {
		It("can read a key that is written", func() {
			Expect(store.Set(ctx, []string{"foo"}, "bar")).To(Succeed())

			entry, err := store.Get(ctx, []string{"foo"})
			Expect(err).To(Succeed())
			Expect(entry.Dir).To(BeFalse())
			Expect(entry.Name()).To(Equal("foo"))
			Expect(string(entry.Content)).To(Equal("bar"))

			value, err := store.Backup()
			Expect(err).To(Succeed())
			Expect(string(value)).To(Equal(`{"foo":"bar"}`))
		})

		It("returns raw JSON for non-string scalars", func() {
			Expect(store.Restore([]byte(`{"n":42,"ok":true,"nothing":null}`))).To(Succeed())

			for name, want := range map[string]string{"n": "42", "ok": "true", "nothing": "null"} {
				entry, err := store.Get(ctx, []string{name})
				Expect(err).To(Succeed())
				Expect(string(entry.Content)).To(Equal(want))
			}
		})

		It("treats the root as a directory", func() {
			entry, err := store.Get(ctx, nil)
			Expect(err).To(Succeed())
			Expect(entry.Dir).To(BeTrue())
			Expect(entry.Name()).To(Equal("/"))
		})

		It("escapes dots in names", func() {
			Expect(store.Set(ctx, []string{"a.b"}, 1)).To(Succeed())

			value, err := store.Backup()
			Expect(err).To(Succeed())
			Expect(string(value)).To(Equal(`{"a.b":1}`))

			entry, err := store.Get(ctx, []string{"a.b"})
			Expect(err).To(Succeed())
			Expect(string(entry.Content)).To(Equal("1"))
		})

		It("rejects bad names", func() {
			for _, name := range []string{"", ".", "..", "a/b", "a*", "#"} {
				Expect(store.Set(ctx, []string{name}, 1)).To(MatchError(storage.ErrBadName))
			}
		})

		It("fails when the parent is missing", func() {
			err := store.Set(ctx, []string{"missing", "child"}, 1)
			Expect(err).To(MatchError(storage.ErrNotExist))
		})

		It("fails when the parent is a file", func() {
			Expect(store.Set(ctx, []string{"file"}, "x")).To(Succeed())

			err := store.Set(ctx, []string{"file", "child"}, 1)
			Expect(err).To(MatchError(storage.ErrNotDir))
		})

		It("returns ErrNotExist for missing paths", func() {
			_, err := store.Get(ctx, []string{"nope"})
			Expect(err).To(MatchError(storage.ErrNotExist))
		})

		It("keeps ids stable and bumps versions", func() {
			Expect(store.Mkdir(ctx, []string{"dir"})).To(Succeed())
			Expect(store.Set(ctx, []string{"dir", "a"}, "1")).To(Succeed())

			first, err := store.Get(ctx, []string{"dir", "a"})
			Expect(err).To(Succeed())
			dirBefore, err := store.Get(ctx, []string{"dir"})
			Expect(err).To(Succeed())

			Expect(store.Set(ctx, []string{"dir", "a"}, "2")).To(Succeed())

			second, err := store.Get(ctx, []string{"dir", "a"})
			Expect(err).To(Succeed())
			dirAfter, err := store.Get(ctx, []string{"dir"})
			Expect(err).To(Succeed())

			Expect(second.ID).To(Equal(first.ID))
			Expect(second.Version).To(Equal(first.Version + 1))
			Expect(dirAfter.Version).To(Equal(dirBefore.Version + 1))
			Expect(dirAfter.ID).NotTo(Equal(second.ID))
		})

		It("sends on the update channel when values are set", func() {
			updateChan := store.ListenToUpdates()
			Expect(store.Set(ctx, []string{"foo"}, "bar")).To(Succeed())

			update, ok := <-updateChan
			Expect(ok).To(BeTrue())
			Expect(update).To(Equal(&storage.Update{
				Path:  []string{"foo"},
				Value: []byte(`"bar"`),
			}))
			Expect(update.Key()).To(Equal("foo"))
		})
	})

	Describe("List()", func() {
		It("lists object members in document order", func() {
			Expect(store.Restore([]byte(`{"b":1,"a":{"x":2}}`))).To(Succeed())

			entries, err := store.List(ctx, nil)
			Expect(err).To(Succeed())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].Name()).To(Equal("b"))
			Expect(entries[0].Dir).To(BeFalse())
			Expect(entries[1].Name()).To(Equal("a"))
			Expect(entries[1].Dir).To(BeTrue())
		})

		It("names array elements by index", func() {
			Expect(store.Restore([]byte(`{"list":[1,"x"]}`))).To(Succeed())

			entries, err := store.List(ctx, []string{"list"})
			Expect(err).To(Succeed())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].Name()).To(Equal("0"))
			Expect(string(entries[0].Content)).To(Equal("1"))
			Expect(entries[1].Name()).To(Equal("1"))
			Expect(string(entries[1].Content)).To(Equal("x"))
		})

		It("lists array elements under paths that resolve", func() {
			Expect(store.Restore([]byte(`{"list":[10,20,30]}`))).To(Succeed())

			entries, err := store.List(ctx, []string{"list"})
			Expect(err).To(Succeed())
			Expect(entries).To(HaveLen(3))

			for i, e := range entries {
				Expect(e.Path).To(Equal([]string{"list", strconv.Itoa(i)}))

				got, err := store.Get(ctx, e.Path)
				Expect(err).To(Succeed())
				Expect(got.ID).To(Equal(e.ID))
				Expect(got.Content).To(Equal(e.Content))
			}
		})

		It("fails on files", func() {
			Expect(store.Set(ctx, []string{"file"}, "x")).To(Succeed())

			_, err := store.List(ctx, []string{"file"})
			Expect(err).To(MatchError(storage.ErrNotDir))
		})
	})

	Describe("Mkdir()", func() {
		It("creates an empty object", func() {
			Expect(store.Mkdir(ctx, []string{"dir"})).To(Succeed())

			value, err := store.Backup()
			Expect(err).To(Succeed())
			Expect(string(value)).To(Equal(`{"dir":{}}`))
		})

		It("fails if the name exists", func() {
			Expect(store.Mkdir(ctx, []string{"dir"})).To(Succeed())
			Expect(store.Mkdir(ctx, []string{"dir"})).To(MatchError(storage.ErrExist))
		})
	})

	Describe("Rename()", func() {
		It("moves a value within its directory", func() {
			Expect(store.Restore([]byte(`{"old":"v","other":1}`))).To(Succeed())
			Expect(store.Rename(ctx, []string{"old"}, "new")).To(Succeed())

			_, err := store.Get(ctx, []string{"old"})
			Expect(err).To(MatchError(storage.ErrNotExist))

			entry, err := store.Get(ctx, []string{"new"})
			Expect(err).To(Succeed())
			Expect(string(entry.Content)).To(Equal("v"))
		})

		It("refuses to overwrite", func() {
			Expect(store.Restore([]byte(`{"a":1,"b":2}`))).To(Succeed())
			Expect(store.Rename(ctx, []string{"a"}, "b")).To(MatchError(storage.ErrExist))
		})
	})

	Describe("Delete()", func() {
		It("removes files and empty directories", func() {
			Expect(store.Restore([]byte(`{"a":1,"d":{}}`))).To(Succeed())
			Expect(store.Delete(ctx, []string{"a"})).To(Succeed())
			Expect(store.Delete(ctx, []string{"d"})).To(Succeed())

			value, err := store.Backup()
			Expect(err).To(Succeed())
			Expect(string(value)).To(Equal(`{}`))
		})

		It("refuses non-empty directories", func() {
			Expect(store.Restore([]byte(`{"d":{"a":1}}`))).To(Succeed())
			Expect(store.Delete(ctx, []string{"d"})).To(MatchError(storage.ErrNotEmpty))
		})

		It("returns ErrNotExist for missing paths", func() {
			Expect(store.Delete(ctx, []string{"nope"})).To(MatchError(storage.ErrNotExist))
		})

		It("sends a nil value to listeners", func() {
			Expect(store.Set(ctx, []string{"a"}, 1)).To(Succeed())
			updateChan := store.ListenToUpdates()

			Expect(store.Delete(ctx, []string{"a"})).To(Succeed())

			update := <-updateChan
			Expect(update.Path).To(Equal([]string{"a"}))
			Expect(update.Value).To(BeNil())
		})
	})
})

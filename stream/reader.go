package stream

import (
	"io"

	"github.com/hoardstore/hoard/digest"
	"github.com/hoardstore/hoard/herr"
)

type frame struct {
	level   uint8
	digests []digest.Digest
	pos     int
}

// Reader streams bytes by traversing a superblock tree rooted at a
// caller-supplied digest, depth-first, concatenating the payloads of the
// leaf (level-0) blocks it reaches. Reader is single-threaded; if the
// underlying Store is a repo.Repo, its own mutex serializes access from
// elsewhere.
type Reader struct {
	store BlockReader
	root  digest.Digest

	stack   []*frame
	started bool
	done    bool

	current []byte
	curPos  int
}

// NewReader returns a Reader that will stream the tree rooted at root,
// fetching blocks from store.
func NewReader(store BlockReader, root digest.Digest) *Reader {
	return &Reader{store: store, root: root}
}

func (r *Reader) fetchSuperblock(d digest.Digest) (*frame, error) {
	buf, ok, err := r.store.Read(d)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, herr.New(herr.MissingBlock, "stream.Reader", "superblock "+d.String()+" not found")
	}
	level, digests, err := decodeSuperblock(buf)
	if err != nil {
		return nil, err
	}
	return &frame{level: level, digests: digests}, nil
}

// advance implements the "next block" algorithm of spec.md §4.9, leaving
// r.current/r.curPos positioned at the next data block, or marking the
// stream done.
func (r *Reader) advance() error {
	if !r.started {
		f, err := r.fetchSuperblock(r.root)
		if err != nil {
			return err
		}
		r.stack = append(r.stack, f)
		r.started = true
	}

	for {
		for len(r.stack) > 0 && r.stack[len(r.stack)-1].pos >= len(r.stack[len(r.stack)-1].digests) {
			r.stack = r.stack[:len(r.stack)-1]
		}
		if len(r.stack) == 0 {
			r.done = true
			return io.EOF
		}

		top := r.stack[len(r.stack)-1]
		if top.level > 0 {
			d := top.digests[top.pos]
			top.pos++
			child, err := r.fetchSuperblock(d)
			if err != nil {
				return err
			}
			r.stack = append(r.stack, child)
			continue
		}

		d := top.digests[top.pos]
		top.pos++
		data, ok, err := r.store.Read(d)
		if err != nil {
			return err
		}
		if !ok {
			return herr.New(herr.MissingBlock, "stream.Reader", "leaf block "+d.String()+" not found")
		}
		r.current = data
		r.curPos = 0
		return nil
	}
}

// Read implements io.Reader, pulling more blocks via advance as each one
// is exhausted.
func (r *Reader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	for r.curPos >= len(r.current) {
		if err := r.advance(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.current[r.curPos:])
	r.curPos += n
	return n, nil
}

// ReadAll drains the stream into a single byte slice. Intended for tests
// and small streams; large streams should use Read directly.
func ReadAll(r *Reader) ([]byte, error) {
	out, err := io.ReadAll(r)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return out, nil
}

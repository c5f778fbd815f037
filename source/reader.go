// Package source streams medication records out of a large JSON array.
//
// The file is decoded token by token, so only the element currently being
// decoded is held in memory regardless of how long the array is.
package source

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrSourceAccess marks a missing, unreadable or malformed source file.
var ErrSourceAccess = errors.New("source access error")

// RawRecord is one decoded array element. Numbers are kept as json.Number.
type RawRecord map[string]any

// Error describes a failure on the source file.
type Error struct {
	Path string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("source %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrSourceAccess) match every *Error.
func (e *Error) Is(target error) bool { return target == ErrSourceAccess }

const readBufferSize = 256 * 1024

// Reader is a forward-only cursor over the elements of a top-level JSON array.
type Reader struct {
	path  string
	file  *os.File
	dec   *json.Decoder
	index int64
	done  bool
}

// Open opens path and consumes the opening bracket of the array.
func Open(path string) (*Reader, error) {
	r := &Reader{path: path}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) open() error {
	f, err := os.Open(r.path)
	if err != nil {
		return &Error{Path: r.path, Op: "open", Err: err}
	}

	dec := json.NewDecoder(bufio.NewReaderSize(f, readBufferSize))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		f.Close()
		if err == io.EOF {
			err = errors.New("empty file")
		}
		return &Error{Path: r.path, Op: "read array start", Err: err}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		f.Close()
		return &Error{Path: r.path, Op: "read array start", Err: fmt.Errorf("top-level value is not an array (got %v)", tok)}
	}

	r.file = f
	r.dec = dec
	r.index = 0
	r.done = false
	return nil
}

// Next decodes the next element. It returns io.EOF once the closing bracket
// has been read and the rest of the file is whitespace.
func (r *Reader) Next() (RawRecord, error) {
	if r.done {
		return nil, io.EOF
	}
	if r.dec == nil {
		return nil, &Error{Path: r.path, Op: "read", Err: errors.New("reader is closed")}
	}

	if !r.dec.More() {
		if err := r.finish(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var rec RawRecord
	if err := r.dec.Decode(&rec); err != nil {
		return nil, &Error{Path: r.path, Op: fmt.Sprintf("decode element %d", r.index), Err: err}
	}
	r.index++
	if rec == nil {
		// a literal null element carries no fields
		rec = RawRecord{}
	}
	return rec, nil
}

// finish consumes the closing bracket and checks for trailing data.
func (r *Reader) finish() error {
	tok, err := r.dec.Token()
	if err != nil {
		if err == io.EOF {
			err = errors.New("unexpected end of file, array not closed")
		}
		return &Error{Path: r.path, Op: "read array end", Err: err}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != ']' {
		return &Error{Path: r.path, Op: "read array end", Err: fmt.Errorf("unexpected token %v", tok)}
	}
	if _, err := r.dec.Token(); err != io.EOF {
		return &Error{Path: r.path, Op: "read trailing data", Err: errors.New("data after the top-level array")}
	}
	r.done = true
	return nil
}

// Index returns the number of elements returned so far.
func (r *Reader) Index() int64 { return r.index }

// Reset closes the file and starts again from the first element.
func (r *Reader) Reset() error {
	if err := r.Close(); err != nil {
		return err
	}
	return r.open()
}

// Close releases the file. Calling it more than once is safe.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.dec = nil
	if err != nil {
		return &Error{Path: r.path, Op: "close", Err: err}
	}
	return nil
}

// Count streams through the whole file and returns the number of elements.
func Count(path string) (int64, error) {
	r, err := Open(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	var n int64
	for {
		var skip json.RawMessage
		if !r.dec.More() {
			if err := r.finish(); err != nil {
				return n, err
			}
			return n, nil
		}
		if err := r.dec.Decode(&skip); err != nil {
			return n, &Error{Path: path, Op: fmt.Sprintf("decode element %d", n), Err: err}
		}
		n++
	}
}

// LoadAll decodes the whole array into memory.
func LoadAll(path string) ([]RawRecord, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var records []RawRecord
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

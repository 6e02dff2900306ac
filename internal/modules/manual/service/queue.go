package service

import (
	"bytes"
	"io"
	"os"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"golang.org/x/sys/unix"
)

// Queue — JSON-файл с ручными ордерами: один объект или массив объектов.
// Все чтения-записи идут под flock, так что CLI может дописывать, пока watcher разбирает.
type Queue struct {
	path string
}

func NewQueue(path string) *Queue { return &Queue{path: path} }

func (q *Queue) Path() string { return q.path }

// queueDoc — содержимое файла с запомненной формой.
type queueDoc struct {
	entries []map[string]any
	single  bool
}

func (d queueDoc) marshal() ([]byte, error) {
	var v any = d.entries
	if d.single && len(d.entries) == 1 {
		v = d.entries[0]
	}
	return sonic.ConfigStd.MarshalIndent(v, "", "  ")
}

func parseQueue(b []byte) (queueDoc, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return queueDoc{}, nil
	}
	if b[0] == '[' {
		var list []map[string]any
		if err := sonic.Unmarshal(b, &list); err != nil {
			return queueDoc{}, errors.Wrap(err, "parse order list")
		}
		return queueDoc{entries: list}, nil
	}
	var one map[string]any
	if err := sonic.Unmarshal(b, &one); err != nil {
		return queueDoc{}, errors.Wrap(err, "parse order")
	}
	return queueDoc{entries: []map[string]any{one}, single: true}, nil
}

// withLock открывает файл под эксклюзивным flock и отдаёт его fn.
func (q *Queue) withLock(create bool, fn func(f *os.File) error) error {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(q.path, flags, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return errors.Wrapf(err, "flock %s", q.path)
	}
	defer func() { _ = unix.Flock(int(f.Fd()), unix.LOCK_UN) }()
	return fn(f)
}

func readDoc(f *os.File) (queueDoc, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return queueDoc{}, err
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return queueDoc{}, errors.Wrap(err, "read queue")
	}
	return parseQueue(b)
}

func writeDoc(f *os.File, d queueDoc) error {
	b, err := d.marshal()
	if err != nil {
		return errors.Wrap(err, "encode queue")
	}
	if err := f.Truncate(0); err != nil {
		return errors.Wrap(err, "truncate queue")
	}
	if _, err := f.WriteAt(append(b, '\n'), 0); err != nil {
		return errors.Wrap(err, "write queue")
	}
	return f.Sync()
}

// Append дописывает ордер. Пустой файл получает один объект, объект превращается в массив.
func (q *Queue) Append(entry map[string]any) (string, error) {
	id, _ := entry["id"].(string)
	if id == "" {
		id = uuid.NewString()
		entry["id"] = id
	}
	if _, ok := entry["processed"]; !ok {
		entry["processed"] = false
	}
	err := q.withLock(true, func(f *os.File) error {
		doc, err := readDoc(f)
		if err != nil {
			return err
		}
		if len(doc.entries) == 0 {
			doc = queueDoc{entries: []map[string]any{entry}, single: true}
		} else {
			doc.entries = append(doc.entries, entry)
			doc.single = false
		}
		return writeDoc(f, doc)
	})
	if err != nil {
		return "", errors.Wrapf(err, "append to %s", q.path)
	}
	return id, nil
}

// Drain отдаёт fn каждую необработанную запись и помечает её processed.
// fn может дописать в запись результат. Файл переписывается, только если что-то обработано.
func (q *Queue) Drain(fn func(entry map[string]any)) (int, error) {
	n := 0
	err := q.withLock(false, func(f *os.File) error {
		doc, err := readDoc(f)
		if err != nil {
			return err
		}
		for _, e := range doc.entries {
			if processed(e) {
				continue
			}
			fn(e)
			e["processed"] = true
			n++
		}
		if n == 0 {
			return nil
		}
		return writeDoc(f, doc)
	})
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return n, errors.Wrapf(err, "drain %s", q.path)
	}
	return n, nil
}

// processed принимает и правленные руками значения: "true", 1.
func processed(e map[string]any) bool {
	return cast.ToBool(e["processed"])
}

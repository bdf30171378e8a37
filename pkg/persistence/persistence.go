// Package persistence stores small JSON documents under prefix:id:tag keys,
// either as files or in a Badger database.
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

var persistLog = logrus.WithField("component", "persistence")

// Service 持久化服务接口
type Service interface {
	NewStore(prefix, id, tag string) Store
	// Scan 按 tag 顺序遍历 prefix:id 下的所有记录
	Scan(prefix, id string, fn func(tag string, raw []byte) error) error
	Close() error
}

// Store 存储接口
type Store interface {
	Save(data any) error
	Load(data any) error
}

// ErrNotExists 表示数据不存在
var ErrNotExists = errors.New("persistence data not exists")

func storeKey(prefix, id, tag string) string {
	return fmt.Sprintf("%s:%s:%s", prefix, id, tag)
}

// JSONFileService 基于 JSON 文件的持久化服务
type JSONFileService struct {
	baseDir string
}

// NewJSONFileService 创建 JSON 文件持久化服务
func NewJSONFileService(baseDir string) *JSONFileService {
	return &JSONFileService{baseDir: baseDir}
}

// NewStore 创建新的存储
func (s *JSONFileService) NewStore(prefix, id, tag string) Store {
	return &JSONFileStore{service: s, key: storeKey(prefix, id, tag)}
}

func (s *JSONFileService) Close() error { return nil }

// Scan walks files whose sanitized name starts with prefix:id:.
func (s *JSONFileService) Scan(prefix, id string, fn func(tag string, raw []byte) error) error {
	head := sanitizeKey(storeKey(prefix, id, ""))
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, head) || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(s.baseDir, name))
		if err != nil {
			return err
		}
		tag := strings.TrimSuffix(strings.TrimPrefix(name, head), ".json")
		if err := fn(tag, raw); err != nil {
			return err
		}
	}
	return nil
}

// JSONFileStore JSON 文件存储实现
type JSONFileStore struct {
	service *JSONFileService
	key     string
}

var keySanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitizeKey(key string) string {
	return keySanitizer.ReplaceAllString(key, "_")
}

func (s *JSONFileStore) filePath() string {
	return filepath.Join(s.service.baseDir, sanitizeKey(s.key)+".json")
}

// Save 保存数据（先写临时文件再 rename）
func (s *JSONFileStore) Save(data any) error {
	persistLog.WithField("key", s.key).Debug("save")
	if err := os.MkdirAll(s.service.baseDir, 0o755); err != nil {
		return err
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	path := s.filePath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load 加载数据
func (s *JSONFileStore) Load(data any) error {
	persistLog.WithField("key", s.key).Debug("load")
	b, err := os.ReadFile(s.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotExists
		}
		return err
	}
	if len(b) == 0 {
		return ErrNotExists
	}
	return json.Unmarshal(b, data)
}

// Open returns the service for backend ("badger" or "json") rooted at dir.
func Open(backend, dir string) (Service, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "badger":
		svc, err := OpenBadger(dir)
		if err != nil {
			return nil, err
		}
		return svc, nil
	case "json":
		return NewJSONFileService(dir), nil
	default:
		return nil, fmt.Errorf("persistence: unknown backend %q", backend)
	}
}

// 本文件用于共享记录文件读写与降级的测试
package sharedstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"manifest-watch/internal/alerterr"
)

type testRecord struct {
	Names []string `json:"names"`
}

func decodeRecord(target *testRecord) DecodeFunc {
	return func(data []byte) error {
		var parsed testRecord
		if err := json.Unmarshal(data, &parsed); err != nil {
			return err
		}
		*target = parsed
		return nil
	}
}

func mustMarshal(t *testing.T, record testRecord) []byte {
	t.Helper()
	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal record failed: %v", err)
	}
	return data
}

func TestNewFile_EmptyPath(t *testing.T) {
	if _, err := NewFile("   "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestFile_SaveThenLoadRoundTrip(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "acknowledgments.json")
	file, err := NewFile(storePath)
	if err != nil {
		t.Fatalf("create file failed: %v", err)
	}

	if err := file.Save(mustMarshal(t, testRecord{Names: []string{"dhl", "ups"}})); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	var loaded testRecord
	if err := file.Load(decodeRecord(&loaded)); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded.Names) != 2 || loaded.Names[0] != "dhl" || loaded.Names[1] != "ups" {
		t.Fatalf("unexpected loaded record: %+v", loaded)
	}
}

func TestFile_LoadMissingFileKeepsDefault(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "mute_status.json")
	file, err := NewFile(storePath)
	if err != nil {
		t.Fatalf("create file failed: %v", err)
	}

	loaded := testRecord{Names: []string{"default"}}
	if err := file.Load(decodeRecord(&loaded)); err != nil {
		t.Fatalf("load missing file should not error, got: %v", err)
	}
	if len(loaded.Names) != 1 || loaded.Names[0] != "default" {
		t.Fatalf("expected default record untouched, got %+v", loaded)
	}
}

func TestFile_CorruptFallsBackToBackup(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "acknowledgments.json")
	if err := os.WriteFile(storePath, []byte("{bad-json"), 0o644); err != nil {
		t.Fatalf("write corrupted file failed: %v", err)
	}
	backupData := mustMarshal(t, testRecord{Names: []string{"from-backup"}})
	if err := os.WriteFile(storePath+".bak", backupData, 0o644); err != nil {
		t.Fatalf("write backup file failed: %v", err)
	}

	file, err := NewFile(storePath)
	if err != nil {
		t.Fatalf("create file failed: %v", err)
	}
	var loaded testRecord
	if err := file.Load(decodeRecord(&loaded)); err != nil {
		t.Fatalf("load should fall back on corruption, got err: %v", err)
	}
	if len(loaded.Names) != 1 || loaded.Names[0] != "from-backup" {
		t.Fatalf("expected backup record, got %+v", loaded)
	}

	corruptMatches, err := filepath.Glob(storePath + ".corrupt-*.bak")
	if err != nil {
		t.Fatalf("glob corrupt files failed: %v", err)
	}
	if len(corruptMatches) != 1 {
		t.Fatalf("expected 1 corrupt copy, got %d", len(corruptMatches))
	}
	corruptData, err := os.ReadFile(corruptMatches[0])
	if err != nil {
		t.Fatalf("read corrupt copy failed: %v", err)
	}
	if string(corruptData) != "{bad-json" {
		t.Fatalf("unexpected corrupt copy content: %s", string(corruptData))
	}

	repaired, err := os.ReadFile(storePath)
	if err != nil {
		t.Fatalf("read repaired store failed: %v", err)
	}
	if string(repaired) != string(backupData) {
		t.Fatalf("expected primary repaired from backup, got: %s", string(repaired))
	}

	health := file.Health()
	if health.CorruptFallbackTotal != 1 {
		t.Fatalf("corrupt fallback total expected 1, got %d", health.CorruptFallbackTotal)
	}
	if health.BackupRecoveredTotal != 1 {
		t.Fatalf("backup recovered total expected 1, got %d", health.BackupRecoveredTotal)
	}
	if health.StoreFile != storePath {
		t.Fatalf("store file expected %s, got %s", storePath, health.StoreFile)
	}
}

func TestFile_CorruptWithoutBackupKeepsDefaultThenSaveRepairs(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "mute_status.json")
	if err := os.WriteFile(storePath, []byte("not json at all"), 0o644); err != nil {
		t.Fatalf("write corrupted file failed: %v", err)
	}

	file, err := NewFile(storePath)
	if err != nil {
		t.Fatalf("create file failed: %v", err)
	}
	var loaded testRecord
	if err := file.Load(decodeRecord(&loaded)); err != nil {
		t.Fatalf("load should fall back on corruption, got err: %v", err)
	}
	if len(loaded.Names) != 0 {
		t.Fatalf("expected zero-value record, got %+v", loaded)
	}

	corruptMatches, err := filepath.Glob(storePath + ".corrupt-*.bak")
	if err != nil {
		t.Fatalf("glob corrupt files failed: %v", err)
	}
	if len(corruptMatches) != 1 {
		t.Fatalf("expected 1 corrupt copy, got %d", len(corruptMatches))
	}

	// 降级后再次加载不应再生成新的转存副本
	if err := file.Load(decodeRecord(&loaded)); err != nil {
		t.Fatalf("reload after fallback failed: %v", err)
	}
	corruptMatches, _ = filepath.Glob(storePath + ".corrupt-*.bak")
	if len(corruptMatches) != 1 {
		t.Fatalf("expected still 1 corrupt copy, got %d", len(corruptMatches))
	}

	if err := file.Save(mustMarshal(t, testRecord{Names: []string{"repaired"}})); err != nil {
		t.Fatalf("save after fallback failed: %v", err)
	}
	var reloaded testRecord
	if err := file.Load(decodeRecord(&reloaded)); err != nil {
		t.Fatalf("load repaired store failed: %v", err)
	}
	if len(reloaded.Names) != 1 || reloaded.Names[0] != "repaired" {
		t.Fatalf("expected repaired record, got %+v", reloaded)
	}
}

func TestFile_SaveKeepsBackupSibling(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "acknowledgments.json")
	file, err := NewFile(storePath)
	if err != nil {
		t.Fatalf("create file failed: %v", err)
	}

	first := mustMarshal(t, testRecord{Names: []string{"gen-1"}})
	if err := file.Save(first); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if err := file.Save(mustMarshal(t, testRecord{Names: []string{"gen-2"}})); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	backupData, err := os.ReadFile(storePath + ".bak")
	if err != nil {
		t.Fatalf("read backup sibling failed: %v", err)
	}
	if string(backupData) != string(first) {
		t.Fatalf("backup should hold previous generation, got: %s", string(backupData))
	}
}

func TestFile_SaveWriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "occupied")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker failed: %v", err)
	}

	// 将记录路径指到普通文件之下 触发写失败
	file, err := NewFile(filepath.Join(blocker, "child.json"))
	if err != nil {
		t.Fatalf("create file failed: %v", err)
	}
	err = file.Save([]byte("{}"))
	if err == nil {
		t.Fatal("expected save failure")
	}
	if !errors.Is(err, alerterr.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable error, got: %v", err)
	}
	if got := file.Health().WriteFailureTotal; got == 0 {
		t.Fatalf("write failure total expected >0, got %d", got)
	}
}

func TestFile_LastModified(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "acknowledgments.json")
	file, err := NewFile(storePath)
	if err != nil {
		t.Fatalf("create file failed: %v", err)
	}

	before, err := file.LastModified()
	if err != nil {
		t.Fatalf("last modified on missing file failed: %v", err)
	}
	if !before.IsZero() {
		t.Fatalf("expected zero time for missing file, got %v", before)
	}

	if err := file.Save([]byte("{}")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	after, err := file.LastModified()
	if err != nil {
		t.Fatalf("last modified failed: %v", err)
	}
	if after.IsZero() {
		t.Fatal("expected non-zero time after save")
	}
}

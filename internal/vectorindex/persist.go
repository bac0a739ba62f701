// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectorindex

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"github.com/northbound/rag-core/internal/apierr"
	"github.com/northbound/rag-core/internal/logger"
)

func init() {
	// Payload values are stored as interface{}; gob needs every concrete
	// type that can appear in a payload map registered up front.
	gob.Register(string(""))
	gob.Register(int(0))
	gob.Register(int64(0))
	gob.Register(float32(0))
	gob.Register(float64(0))
	gob.Register(bool(false))
	gob.Register(time.Time{})
	gob.Register([]string{})
	gob.Register([]any{})
}

func loggerForLoad() *logger.Logger {
	return logger.GetDefault()
}

// snapshot is the gob-serializable form of an Index: the raw vectors (so
// the loaded variant can be rebuilt exactly, regardless of which tier was
// active when it was saved) plus the id mappings, tier, and config.
type snapshot struct {
	Dim     int
	Tier    Tier
	Cfg     Config
	NextPos uint64
	PosToID map[uint64]string
	IDToPos map[string]uint64
	Vectors map[uint64][]float32
	Deleted int
}

type payloadBlob struct {
	Payload map[string]map[string]any
}

// SaveAtomic writes the index binary and payload blob to temp files
// alongside indexPath/payloadPath, then renames both into place so a
// reader never observes a partial write.
func (idx *Index) SaveAtomic(indexPath, payloadPath string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	vectors := make(map[uint64][]float32, len(idx.posToID))
	for pos := range idx.posToID {
		if vec, ok := idx.variant.Reconstruct(pos); ok {
			vectors[pos] = vec
		}
	}

	snap := snapshot{
		Dim:     idx.dim,
		Tier:    idx.tier,
		Cfg:     idx.cfg,
		NextPos: idx.nextPos,
		PosToID: idx.posToID,
		IDToPos: idx.idToPos,
		Vectors: vectors,
		Deleted: idx.deletedCount,
	}
	if err := writeGobAtomic(indexPath, snap); err != nil {
		return apierr.Wrap(apierr.CodeVectorStoreError, "save index binary", err)
	}

	blob := payloadBlob{Payload: idx.payload}
	if err := writeGobAtomic(payloadPath, blob); err != nil {
		return apierr.Wrap(apierr.CodeVectorStoreError, "save payload blob", err)
	}
	return nil
}

func writeGobAtomic(path string, v any) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// LoadAtomic loads a previously saved index. If the payload blob is
// missing or corrupt, it continues with empty payload maps and logs; if
// the index binary is corrupt, it starts fresh and logs
// rather than failing the caller.
func LoadAtomic(indexPath, payloadPath string) *Index {
	log := loggerForLoad()

	var snap snapshot
	if f, err := os.Open(indexPath); err == nil {
		err := gob.NewDecoder(f).Decode(&snap)
		f.Close()
		if err != nil {
			log.Errorf("vectorindex: index binary corrupt, starting fresh: %v", err)
			snap = snapshot{}
		}
	} else {
		log.Warnf("vectorindex: no existing index at %s, starting fresh", indexPath)
	}

	var blob payloadBlob
	if f, err := os.Open(payloadPath); err == nil {
		err := gob.NewDecoder(f).Decode(&blob)
		f.Close()
		if err != nil {
			log.Errorf("vectorindex: payload blob corrupt, continuing with empty payloads: %v", err)
			blob = payloadBlob{}
		}
	} else {
		log.Warnf("vectorindex: no existing payload blob at %s, continuing empty", payloadPath)
	}
	if blob.Payload == nil {
		blob.Payload = make(map[string]map[string]any)
	}

	cfg := snap.Cfg
	if cfg.FlatMaxPopulation == 0 {
		cfg = DefaultConfig()
	}
	idx := &Index{
		cfg:     cfg,
		dim:     snap.Dim,
		log:     log,
		posToID: snap.PosToID,
		idToPos: snap.IDToPos,
		payload: blob.Payload,
		nextPos: snap.NextPos,
		deletedCount: snap.Deleted,
	}
	if idx.posToID == nil {
		idx.posToID = make(map[uint64]string)
	}
	if idx.idToPos == nil {
		idx.idToPos = make(map[string]uint64)
	}

	tier := snap.Tier
	if tier == "" {
		tier = SelectTier(len(snap.Vectors), cfg)
	}
	idx.tier = tier
	idx.variant = newVariant(tier, idx.dim, cfg)
	if idx.variant.NeedsTraining() && len(snap.Vectors) > 0 {
		samples := make([][]float32, 0, len(snap.Vectors))
		for _, v := range snap.Vectors {
			samples = append(samples, v)
		}
		idx.variant.Train(samples)
	}
	for pos, vec := range snap.Vectors {
		idx.variant.Add(pos, vec)
	}

	idx.RebuildIfStale()
	return idx
}

// Backup saves the index and payload to "<path>.idx" and "<path>.payload".
func (idx *Index) Backup(path string) error {
	return idx.SaveAtomic(path+".idx", path+".payload")
}

// Restore loads an index previously written by Backup, replacing idx's
// contents in place under the write lock.
func (idx *Index) Restore(path string) error {
	loaded := LoadAtomic(path+".idx", path+".payload")

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.cfg = loaded.cfg
	idx.dim = loaded.dim
	idx.variant = loaded.variant
	idx.tier = loaded.tier
	idx.nextPos = loaded.nextPos
	idx.posToID = loaded.posToID
	idx.idToPos = loaded.idToPos
	idx.payload = loaded.payload
	idx.deletedCount = loaded.deletedCount
	idx.trainingSamples = nil
	return nil
}

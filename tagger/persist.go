package tagger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gomlx/go-seqlabel/embedding"
	"github.com/gomlx/go-seqlabel/hub"
	"github.com/gomlx/go-seqlabel/safetensors"
	"github.com/gomlx/go-seqlabel/vocab"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Files of a saved model directory.
const (
	ModelFile   = "model.json"
	LabelsFile  = "labels.json"
	TokensFile  = "tokens.json"
	WeightsFile = "weights.safetensors"
)

// Kinds of embedding a saved model can reference.
const (
	KindCustom      = "custom"
	KindWord        = "word"
	KindTransformer = "transformer"
)

// EmbeddingRef describes the embedding of a saved model.
type EmbeddingRef struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Trainable bool   `json:"trainable"`

	// Source of a transformer checkpoint: a directory if Local, a repository id otherwise.
	Source string `json:"source,omitempty"`
	Local  bool   `json:"local,omitempty"`

	// Endpoint and Revision of a remote transformer checkpoint.
	Endpoint string `json:"endpoint,omitempty"`
	Revision string `json:"revision,omitempty"`
}

// setRepo records where the transformer checkpoint repo is read from.
func (ref *EmbeddingRef) setRepo(repo *hub.Repo) {
	ref.Local = repo.IsLocal()
	if ref.Local {
		ref.Source = repo.Dir
		return
	}
	ref.Source, ref.Endpoint, ref.Revision = repo.ID, repo.Endpoint, repo.Revision
}

// repo of the transformer checkpoint. Remote ones are read from the endpoint and revision the
// model was trained with, and cached in the default cache directory.
func (ref EmbeddingRef) repo() *hub.Repo {
	if ref.Local {
		return hub.NewLocal(ref.Source)
	}
	repo := hub.New(ref.Source)
	if ref.Endpoint != "" {
		repo = repo.WithEndpoint(ref.Endpoint)
	}
	if ref.Revision != "" {
		repo = repo.WithRevision(ref.Revision)
	}
	return repo
}

// key identifies the checkpoint in the registry of shared embeddings.
func (ref EmbeddingRef) key(sequenceLength int) string {
	if ref.Local {
		return fmt.Sprintf("local:%s:%d", ref.Source, sequenceLength)
	}
	return fmt.Sprintf("%s/%s@%s:%d", ref.Endpoint, ref.Source, ref.Revision, sequenceLength)
}

// SharedEmbeddings holds the frozen transformer embeddings read by Load. Models loaded from the
// same checkpoint, with the same sequence length, share its embedding table.
var SharedEmbeddings = embedding.NewRegistry()

// Checkpoint is the content of the ModelFile.
type Checkpoint struct {
	ID              string          `json:"id"`
	Architecture    Architecture    `json:"architecture"`
	Hyperparameters Hyperparameters `json:"hyperparameters"`
	Embedding       EmbeddingRef    `json:"embedding"`
}

func embeddingRef(emb embedding.Embedding) (EmbeddingRef, error) {
	ref := EmbeddingRef{Name: emb.Name(), Trainable: emb.Trainable()}
	switch typed := emb.(type) {
	case *embedding.Custom:
		ref.Kind = KindCustom
	case *embedding.Word:
		ref.Kind = KindWord
	case *embedding.Transformer:
		ref.Kind = KindTransformer
		ref.setRepo(typed.Repo())
	default:
		return ref, errors.Errorf("can't save a model with an embedding of type %T", emb)
	}
	return ref, nil
}

// tokenVocabulary of the embeddings whose vocabulary is saved with the model.
func tokenVocabulary(emb embedding.Embedding) *vocab.Vocabulary {
	switch typed := emb.(type) {
	case *embedding.Custom:
		return typed.TokenVocabulary()
	case *embedding.Word:
		return typed.TokenVocabulary()
	}
	return nil
}

// Save writes the trained model to dir, creating it if needed.
//
// The embedding table is saved along the network weights, except for frozen transformer
// embeddings, which Load reads back from their checkpoint.
func (m *Model) Save(dir string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkTrained(); err != nil {
		return err
	}
	ref, err := embeddingRef(m.emb)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create model directory %q", dir)
	}

	checkpoint := Checkpoint{ID: m.ID.String(), Architecture: m.arch, Hyperparameters: m.hp, Embedding: ref}
	content, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to serialize model description")
	}
	if err := os.WriteFile(filepath.Join(dir, ModelFile), content, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", ModelFile)
	}
	if err := m.labels.Save(filepath.Join(dir, LabelsFile)); err != nil {
		return err
	}
	if tokens := tokenVocabulary(m.emb); tokens != nil {
		if err := tokens.Save(filepath.Join(dir, TokensFile)); err != nil {
			return err
		}
	}

	weights := make(map[string]*mat.Dense)
	for _, p := range m.net.weights() {
		if p == m.net.lookup.Table && ref.Kind == KindTransformer && !ref.Trainable {
			continue
		}
		weights[p.Name] = p.Value
	}
	metadata := map[string]string{"id": checkpoint.ID, "architecture": string(m.arch)}
	if err := safetensors.Write(filepath.Join(dir, WeightsFile), weights, metadata); err != nil {
		return err
	}
	klog.V(1).Infof("saved %s model %s to %q", m.arch, m.ID, dir)
	return nil
}

// ReadCheckpoint reads the description of the model saved in dir.
func ReadCheckpoint(dir string) (*Checkpoint, error) {
	content, err := os.ReadFile(filepath.Join(dir, ModelFile))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read model description from %q", dir)
	}
	checkpoint := &Checkpoint{}
	if err := json.Unmarshal(content, checkpoint); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s in %q", ModelFile, dir)
	}
	return checkpoint, nil
}

// Load reads a model saved with Save.
func Load(dir string) (*Model, error) {
	checkpoint, err := ReadCheckpoint(dir)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(checkpoint.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid model id %q", checkpoint.ID)
	}
	arch, err := ParseArchitecture(string(checkpoint.Architecture))
	if err != nil {
		return nil, err
	}
	hp := checkpoint.Hyperparameters
	if err := hp.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "model %q", dir)
	}
	labels, err := vocab.Load(filepath.Join(dir, LabelsFile))
	if err != nil {
		return nil, err
	}
	if labels.Len() <= vocab.NumReserved {
		return nil, errors.Errorf("model %q has no labels", dir)
	}
	weights, _, err := safetensors.ReadAll(filepath.Join(dir, WeightsFile))
	if err != nil {
		return nil, err
	}
	emb, err := loadEmbedding(dir, checkpoint.Embedding, hp, weights)
	if err != nil {
		return nil, errors.WithMessagef(err, "while loading the embedding of model %q", dir)
	}

	m := &Model{ID: id, arch: arch, hp: hp, emb: emb, labels: labels}
	table := emb.Table()
	if saved, found := weights["embedding"]; found {
		table = saved
	}
	m.net = newNetwork(arch, hp, table, emb.Trainable(), labels.Len()-vocab.NumReserved)
	for _, p := range m.net.weights() {
		if p == m.net.lookup.Table {
			continue
		}
		w, found := weights[p.Name]
		if !found {
			return nil, errors.Errorf("model %q: weights file misses %q", dir, p.Name)
		}
		if err := p.Set(w); err != nil {
			return nil, errors.WithMessagef(err, "model %q", dir)
		}
	}
	klog.V(1).Infof("loaded %s model %s from %q", arch, id, dir)
	return m, nil
}

func loadEmbedding(dir string, ref EmbeddingRef, hp Hyperparameters, weights map[string]*mat.Dense) (embedding.Embedding, error) {
	opts := []embedding.Option{embedding.WithTrainable(ref.Trainable), embedding.WithSeed(hp.Seed)}
	if ref.Kind == KindTransformer {
		create := func() (embedding.Embedding, error) {
			e, err := embedding.LoadTransformer(ref.repo(), hp.SequenceLength, opts...)
			if err != nil {
				return nil, err
			}
			return e, nil
		}
		if ref.Trainable {
			// Fine-tuned tables are restored from the weights file, one per model.
			return create()
		}
		return SharedEmbeddings.GetOrCreate(ref.key(hp.SequenceLength), create)
	}

	tokens, err := vocab.Load(filepath.Join(dir, TokensFile))
	if err != nil {
		return nil, err
	}
	table, found := weights["embedding"]
	if !found {
		return nil, errors.New("weights file misses the embedding table")
	}
	rows, dim := table.Dims()
	if rows != tokens.Len() {
		return nil, errors.Errorf("embedding table has %d rows for %d tokens", rows, tokens.Len())
	}
	switch ref.Kind {
	case KindCustom:
		custom, err := embedding.NewCustom(ref.Name, hp.SequenceLength, dim, opts...)
		if err != nil {
			return nil, err
		}
		if err := custom.SetVocabulary(tokens, mat.DenseCopyOf(table)); err != nil {
			return nil, err
		}
		return custom, nil
	case KindWord:
		words := tokens.Tokens()[vocab.NumReserved:]
		vectors := mat.DenseCopyOf(table.Slice(vocab.NumReserved, rows, 0, dim))
		return embedding.NewWord(ref.Name, words, vectors, hp.SequenceLength, opts...)
	default:
		return nil, errors.Errorf("unknown embedding kind %q", ref.Kind)
	}
}

package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/matzehuels/lamacheck/pkg/model"
	"github.com/matzehuels/lamacheck/pkg/registry"
	"github.com/matzehuels/lamacheck/pkg/version"
)

// Collection names.
const (
	ArtifactsCollection    = "artifacts"
	RepositoriesCollection = "repositories"
)

// DefaultDatabase is used when MongoOptions.Database is empty.
const DefaultDatabase = "lamacheck"

// MongoOptions configures a MongoStore.
type MongoOptions struct {
	URI      string
	Database string
}

// MongoStore keeps one document per artifact and per repository.
type MongoStore struct {
	client       *mongo.Client
	artifacts    *mongo.Collection
	repositories *mongo.Collection
}

// NewMongoStore connects to MongoDB and verifies the connection with a ping.
func NewMongoStore(ctx context.Context, opts MongoOptions) (*MongoStore, error) {
	if opts.Database == "" {
		opts.Database = DefaultDatabase
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	db := client.Database(opts.Database)
	return &MongoStore{
		client:       client,
		artifacts:    db.Collection(ArtifactsCollection),
		repositories: db.Collection(RepositoriesCollection),
	}, nil
}

// Load reads every artifact and repository. Repositories come back in
// registration order.
func (s *MongoStore) Load(ctx context.Context) (*registry.Snapshot, error) {
	var repos []repositoryDoc
	cur, err := s.repositories.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find repositories: %w", err)
	}
	if err := cur.All(ctx, &repos); err != nil {
		return nil, fmt.Errorf("decode repositories: %w", err)
	}

	var artifacts []artifactDoc
	cur, err = s.artifacts.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find artifacts: %w", err)
	}
	if err := cur.All(ctx, &artifacts); err != nil {
		return nil, fmt.Errorf("decode artifacts: %w", err)
	}

	snap := &registry.Snapshot{
		Artifacts:    make([]model.Artifact, 0, len(artifacts)),
		Repositories: make([]model.Repository, 0, len(repos)),
	}
	for _, d := range repos {
		snap.Repositories = append(snap.Repositories, d.model())
	}
	for _, d := range artifacts {
		snap.Artifacts = append(snap.Artifacts, d.model())
	}
	return snap, nil
}

// Save upserts every entity of snap and deletes the ones no longer present.
func (s *MongoStore) Save(ctx context.Context, snap *registry.Snapshot) error {
	ids := make([]string, 0, len(snap.Repositories))
	writes := make([]mongo.WriteModel, 0, len(snap.Repositories))
	for i, r := range snap.Repositories {
		d := repositoryFromModel(r, i)
		ids = append(ids, d.ID)
		writes = append(writes, replace(d.ID, d))
	}
	if err := syncCollection(ctx, s.repositories, ids, writes); err != nil {
		return fmt.Errorf("save repositories: %w", err)
	}

	ids = make([]string, 0, len(snap.Artifacts))
	writes = make([]mongo.WriteModel, 0, len(snap.Artifacts))
	for _, a := range snap.Artifacts {
		d := artifactFromModel(a)
		ids = append(ids, d.ID)
		writes = append(writes, replace(d.ID, d))
	}
	if err := syncCollection(ctx, s.artifacts, ids, writes); err != nil {
		return fmt.Errorf("save artifacts: %w", err)
	}
	return nil
}

func replace(id string, doc any) mongo.WriteModel {
	return mongo.NewReplaceOneModel().
		SetFilter(bson.D{{Key: "_id", Value: id}}).
		SetReplacement(doc).
		SetUpsert(true)
}

func syncCollection(ctx context.Context, coll *mongo.Collection, ids []string, writes []mongo.WriteModel) error {
	if len(writes) > 0 {
		if _, err := coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
			return err
		}
	}
	_, err := coll.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$nin", Value: ids}}}})
	return err
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

var _ Backend = (*MongoStore)(nil)

// =============================================================================
// Documents
// =============================================================================

// Versions are stored by their original string; the bson codec does not use
// encoding.TextMarshaler.

type repositoryDoc struct {
	ID      string    `bson:"_id"`
	Seq     int       `bson:"seq"`
	URL     string    `bson:"url"`
	Layout  string    `bson:"layout"`
	Invalid bool      `bson:"invalid,omitempty"`
	Note    string    `bson:"note,omitempty"`
	Created time.Time `bson:"created"`
}

type repoStateDoc struct {
	RepoID      string     `bson:"repo_id"`
	Release     string     `bson:"release,omitempty"`
	Beta        string     `bson:"beta,omitempty"`
	LastSuccess *time.Time `bson:"last_success,omitempty"`
	LastError   *time.Time `bson:"last_error,omitempty"`
}

type artifactDoc struct {
	ID                  string         `bson:"_id"`
	GroupID             string         `bson:"group_id"`
	ArtifactID          string         `bson:"artifact_id"`
	Packaging           string         `bson:"packaging,omitempty"`
	Repos               []repoStateDoc `bson:"repos,omitempty"`
	LatestRelease       string         `bson:"latest_release,omitempty"`
	LatestBeta          string         `bson:"latest_beta,omitempty"`
	ExcludedVersions    []string       `bson:"excluded_versions,omitempty"`
	LastMetadataCheck   *time.Time     `bson:"last_metadata_check,omitempty"`
	LastMetadataError   *time.Time     `bson:"last_metadata_error,omitempty"`
	LastRepoSearchError *time.Time     `bson:"last_repo_search_error,omitempty"`
	Created             time.Time      `bson:"created"`
}

func repositoryFromModel(r model.Repository, seq int) repositoryDoc {
	return repositoryDoc{
		ID:      r.ID,
		Seq:     seq,
		URL:     r.URL,
		Layout:  string(r.Layout),
		Invalid: r.Invalid,
		Note:    r.Note,
		Created: r.Created,
	}
}

func (d repositoryDoc) model() model.Repository {
	return model.Repository{
		ID:      d.ID,
		URL:     d.URL,
		Layout:  model.Layout(d.Layout),
		Invalid: d.Invalid,
		Note:    d.Note,
		Created: d.Created,
	}
}

func artifactFromModel(a model.Artifact) artifactDoc {
	d := artifactDoc{
		ID:                  a.ID(),
		GroupID:             a.GroupID,
		ArtifactID:          a.ArtifactID,
		Packaging:           string(a.Packaging),
		LatestRelease:       a.LatestRelease.Original(),
		LatestBeta:          a.LatestBeta.Original(),
		ExcludedVersions:    a.ExcludedVersions,
		LastMetadataCheck:   a.LastMetadataCheck,
		LastMetadataError:   a.LastMetadataError,
		LastRepoSearchError: a.LastRepoSearchError,
		Created:             a.Created,
	}
	for _, r := range a.Repos {
		d.Repos = append(d.Repos, repoStateDoc{
			RepoID:      r.RepoID,
			Release:     r.Release.Original(),
			Beta:        r.Beta.Original(),
			LastSuccess: r.LastSuccess,
			LastError:   r.LastError,
		})
	}
	return d
}

func (d artifactDoc) model() model.Artifact {
	a := model.Artifact{
		GroupID:             d.GroupID,
		ArtifactID:          d.ArtifactID,
		Packaging:           model.Packaging(d.Packaging),
		LatestRelease:       version.Optional(d.LatestRelease),
		LatestBeta:          version.Optional(d.LatestBeta),
		ExcludedVersions:    d.ExcludedVersions,
		LastMetadataCheck:   d.LastMetadataCheck,
		LastMetadataError:   d.LastMetadataError,
		LastRepoSearchError: d.LastRepoSearchError,
		Created:             d.Created,
	}
	for _, r := range d.Repos {
		a.Repos = append(a.Repos, model.RepoState{
			RepoID:      r.RepoID,
			Release:     version.Optional(r.Release),
			Beta:        version.Optional(r.Beta),
			LastSuccess: r.LastSuccess,
			LastError:   r.LastError,
		})
	}
	return a
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cppla/campusnews/models"
)

const announcementCollection = "announcements"

type attachmentDoc struct {
	ID         primitive.ObjectID `bson:"_id"`
	FileName   string             `bson:"fileName"`
	FileURL    string             `bson:"fileUrl"`
	FileSize   int64              `bson:"fileSize"`
	FileType   string             `bson:"fileType"`
	UploadedAt time.Time          `bson:"uploadedAt"`
}

type announcementDoc struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty"`
	Title               string             `bson:"title"`
	OriginalDescription string             `bson:"originalDescription"`
	Summary             string             `bson:"summary"`
	ImageURL            string             `bson:"imageUrl"`
	Tags                []string           `bson:"tags"`
	Category            string             `bson:"category"`
	Audience            string             `bson:"audience"`
	Students            []models.Student   `bson:"students"`
	Staff               []models.Staff     `bson:"staff"`
	Attachments         []attachmentDoc    `bson:"attachments"`
	AuthorID            string             `bson:"authorId"`
	CreatedAt           time.Time          `bson:"createdAt"`
}

// MongoRepository stores announcements as documents. Ids are ObjectID hex
// strings.
type MongoRepository struct {
	collection *mongo.Collection
}

// NewMongoRepository binds the repository to the announcements collection.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{collection: db.Collection(announcementCollection)}
}

// EnsureIndexes creates the indexes used by FindAll.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "authorId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	return err
}

func (r *MongoRepository) ValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}

func (r *MongoRepository) FindAll(ctx context.Context, filter Filter) ([]models.Announcement, error) {
	query := bson.M{}
	if filter.AuthorID != "" {
		query["authorId"] = filter.AuthorID
	}
	if category, ok := filter.categoryFilter(); ok {
		query["category"] = string(category)
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	defer cur.Close(ctx)

	var docs []announcementDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode announcements: %w", err)
	}
	out := make([]models.Announcement, 0, len(docs))
	for i := range docs {
		out = append(out, *docs[i].toModel())
	}
	return out, nil
}

func (r *MongoRepository) FindByID(ctx context.Context, id string) (*models.Announcement, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	var doc announcementDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load announcement %s: %w", id, err)
	}
	return doc.toModel(), nil
}

func (r *MongoRepository) Insert(ctx context.Context, a *models.Announcement) (*models.Announcement, error) {
	doc, err := fromModel(a)
	if err != nil {
		return nil, err
	}
	doc.ID = primitive.NewObjectID()
	doc.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert announcement: %w", err)
	}
	return doc.toModel(), nil
}

func (r *MongoRepository) Replace(ctx context.Context, id string, a *models.Announcement) (*models.Announcement, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	doc, err := fromModel(a)
	if err != nil {
		return nil, err
	}
	// authorId and createdAt are immutable; only the mutable fields are set.
	update := bson.M{"$set": bson.M{
		"title":               doc.Title,
		"originalDescription": doc.OriginalDescription,
		"summary":             doc.Summary,
		"imageUrl":            doc.ImageURL,
		"tags":                doc.Tags,
		"category":            doc.Category,
		"audience":            doc.Audience,
		"students":            doc.Students,
		"staff":               doc.Staff,
		"attachments":         doc.Attachments,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated announcementDoc
	if err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&updated); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("replace announcement %s: %w", id, err)
	}
	return updated.toModel(), nil
}

func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrInvalidID
	}
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete announcement %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func fromModel(a *models.Announcement) (*announcementDoc, error) {
	doc := &announcementDoc{
		Title:               a.Title,
		OriginalDescription: a.OriginalDescription,
		Summary:             a.Summary,
		ImageURL:            a.ImageURL,
		Tags:                append([]string{}, a.Tags...),
		Category:            string(a.Category),
		Audience:            string(a.Audience),
		Students:            append([]models.Student{}, a.Students...),
		Staff:               append([]models.Staff{}, a.Staff...),
		Attachments:         make([]attachmentDoc, 0, len(a.Attachments)),
		AuthorID:            a.AuthorID,
		CreatedAt:           a.CreatedAt,
	}
	for _, att := range a.Attachments {
		oid := primitive.NewObjectID()
		if att.ID != "" {
			parsed, err := primitive.ObjectIDFromHex(att.ID)
			if err != nil {
				return nil, ErrInvalidID
			}
			oid = parsed
		}
		doc.Attachments = append(doc.Attachments, attachmentDoc{
			ID:         oid,
			FileName:   att.FileName,
			FileURL:    att.FileURL,
			FileSize:   att.FileSize,
			FileType:   att.FileType,
			UploadedAt: att.UploadedAt,
		})
	}
	return doc, nil
}

func (d *announcementDoc) toModel() *models.Announcement {
	a := &models.Announcement{
		ID:                  d.ID.Hex(),
		Title:               d.Title,
		OriginalDescription: d.OriginalDescription,
		Summary:             d.Summary,
		ImageURL:            d.ImageURL,
		Tags:                d.Tags,
		Category:            models.Category(d.Category),
		Audience:            models.Audience(d.Audience),
		Students:            d.Students,
		Staff:               d.Staff,
		AuthorID:            d.AuthorID,
		CreatedAt:           d.CreatedAt,
	}
	for _, att := range d.Attachments {
		a.Attachments = append(a.Attachments, models.Attachment{
			ID:         att.ID.Hex(),
			FileName:   att.FileName,
			FileURL:    att.FileURL,
			FileSize:   att.FileSize,
			FileType:   att.FileType,
			UploadedAt: att.UploadedAt,
		})
	}
	a.Normalize()
	return a
}

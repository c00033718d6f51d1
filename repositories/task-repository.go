package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Yohan-Helitha/DesynFlow-sub000/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is returned when no task exists for the given id.
	ErrNotFound = errors.New("task not found")
	// ErrStatusConflict is returned when a preconditioned transition lost a
	// race, the task's status is no longer the one the caller read.
	ErrStatusConflict = errors.New("task status changed concurrently")
)

// TransitionUpdate is the set of fields a status transition may change in a
// single atomic write.
type TransitionUpdate struct {
	Status           models.TaskStatus
	Progress         *int
	CompletedAt      *time.Time
	ClearCompletedAt bool
	BlockedIssue     string
}

// TaskStore is the persistence contract for tasks. The Mongo implementation
// below is the production one, tests supply an in-memory store.
type TaskStore interface {
	Insert(ctx context.Context, task *models.Task) (*models.Task, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Task, error)
	Replace(ctx context.Context, task *models.Task) (*models.Task, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	ListByProject(ctx context.Context, projectID string) ([]*models.Task, error)
	ApplyTransition(ctx context.Context, id primitive.ObjectID, from models.TaskStatus, update TransitionUpdate) (*models.Task, error)
}

type MongoTaskRepo struct {
	tasksCollection *mongo.Collection
}

func NewMongoTaskRepo(client *mongo.Client, dbName, collectionName string) *MongoTaskRepo {
	return &MongoTaskRepo{
		tasksCollection: client.Database(dbName).Collection(collectionName),
	}
}

func (r *MongoTaskRepo) Insert(ctx context.Context, task *models.Task) (*models.Task, error) {
	if task.ID.IsZero() {
		task.ID = primitive.NewObjectID()
	}

	result, err := r.tasksCollection.InsertOne(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}

	task.ID = result.InsertedID.(primitive.ObjectID)
	return task, nil
}

func (r *MongoTaskRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Task, error) {
	var task models.Task
	err := r.tasksCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&task)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch task: %w", err)
	}
	return &task, nil
}

func (r *MongoTaskRepo) Replace(ctx context.Context, task *models.Task) (*models.Task, error) {
	result, err := r.tasksCollection.ReplaceOne(ctx, bson.M{"_id": task.ID}, task)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if result.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return task, nil
}

func (r *MongoTaskRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.tasksCollection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoTaskRepo) ListByProject(ctx context.Context, projectID string) ([]*models.Task, error) {
	cursor, err := r.tasksCollection.Find(ctx, bson.M{"projectId": projectID})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []*models.Task
	for cursor.Next(ctx) {
		var task models.Task
		if err := cursor.Decode(&task); err != nil {
			return nil, fmt.Errorf("failed to decode task: %w", err)
		}
		tasks = append(tasks, &task)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return tasks, nil
}

// ApplyTransition writes a status transition with the previously read status
// as a precondition, so two racing transitions are serialized at the storage
// level. When the precondition no longer holds the caller gets
// ErrStatusConflict and must re-read before retrying.
func (r *MongoTaskRepo) ApplyTransition(ctx context.Context, id primitive.ObjectID, from models.TaskStatus, update TransitionUpdate) (*models.Task, error) {
	set := bson.M{
		"status":    update.Status,
		"updatedAt": time.Now().UTC(),
	}
	unset := bson.M{}

	if update.Progress != nil {
		set["progressPercentage"] = *update.Progress
	}
	if update.CompletedAt != nil {
		set["completedAt"] = *update.CompletedAt
	}
	if update.ClearCompletedAt {
		unset["completedAt"] = ""
	}
	if update.BlockedIssue != "" {
		set["blockedIssue"] = update.BlockedIssue
	}

	changes := bson.M{"$set": set}
	if len(unset) > 0 {
		changes["$unset"] = unset
	}

	filter := bson.M{"_id": id, "status": from}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var task models.Task
	err := r.tasksCollection.FindOneAndUpdate(ctx, filter, changes, opts).Decode(&task)
	if err == nil {
		return &task, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to apply transition: %w", err)
	}

	// The filter missed: either the task is gone or its status moved.
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrStatusConflict
}

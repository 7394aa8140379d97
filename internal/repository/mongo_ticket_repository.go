package repository

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/workflow"
)

var _ TicketRepository = (*MongoTicketRepository)(nil)

// MongoTicketRepository stores ticket documents in a MongoDB collection.
type MongoTicketRepository struct {
	collection *mongo.Collection
}

// NewMongoTicketRepository returns a MongoDB-backed implementation.
func NewMongoTicketRepository(db *mongo.Database, collection string) *MongoTicketRepository {
	return &MongoTicketRepository{collection: db.Collection(collection)}
}

// EnsureIndexes creates the indexes used by scoped listing and counting.
func (r *MongoTicketRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "reference", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "createdAt", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "createdBy", Value: 1},
				{Key: "createdAt", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "assignedTo", Value: 1},
				{Key: "status", Value: 1},
			},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func (r *MongoTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	_, err := r.collection.InsertOne(ctx, ticket)
	return err
}

func (r *MongoTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&ticket); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

func (r *MongoTicketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int64, error) {
	query := buildTicketQuery(filter)

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(filter.Limit, filter.Offset)
	direction := -1
	if sanitizeOrder(filter.Order) == "asc" {
		direction = 1
	}
	sortField := sanitizeSort(filter.Sort)
	if sortField == "priority" {
		sortField = "priorityRank"
	}

	opts := options.Find().
		SetSort(bson.D{{Key: sortField, Value: direction}, {Key: "_id", Value: direction}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	tickets := []domain.Ticket{}
	if err := cursor.All(ctx, &tickets); err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}

func (r *MongoTicketRepository) Count(ctx context.Context, filter TicketFilter) (int64, error) {
	return r.collection.CountDocuments(ctx, buildTicketQuery(filter))
}

func (r *MongoTicketRepository) CountByStatus(ctx context.Context, filter TicketFilter) (map[domain.TicketStatus]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: buildTicketQuery(filter.WithoutStatus())}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status domain.TicketStatus `bson:"_id"`
		Count  int64               `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := make(map[domain.TicketStatus]int64, len(domain.TicketStatuses))
	for _, status := range domain.TicketStatuses {
		counts[status] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *MongoTicketRepository) ApplyChange(ctx context.Context, id string, change *workflow.Change, now time.Time) (*domain.Ticket, error) {
	guard := bson.M{"_id": id, "status": change.ExpectStatus}
	if change.ExpectAssignee == "" {
		guard["assignedTo"] = bson.M{"$in": bson.A{nil, ""}}
	} else {
		guard["assignedTo"] = change.ExpectAssignee
	}

	set := bson.M{"status": change.Status, "updatedAt": now}
	update := bson.M{
		"$push": bson.M{"auditTrail": bson.M{"$each": change.Events}},
	}
	if change.Assignee != nil {
		if change.Assignee.ID == "" {
			update["$unset"] = bson.M{"assignedTo": "", "assignedToName": ""}
		} else {
			set["assignedTo"] = change.Assignee.ID
			set["assignedToName"] = change.Assignee.Name
		}
	}
	if change.ClosedAt != nil {
		set["closedAt"] = *change.ClosedAt
	}
	update["$set"] = set

	return r.conditionalUpdate(ctx, id, guard, update)
}

func (r *MongoTicketRepository) UpdateFields(ctx context.Context, id string, expectStatus domain.TicketStatus, upd TicketFieldUpdate, event domain.AuditEvent, now time.Time) (*domain.Ticket, error) {
	set := bson.M{"updatedAt": now}
	if upd.Title != nil {
		set["title"] = *upd.Title
	}
	if upd.Description != nil {
		set["description"] = *upd.Description
	}
	if upd.Category != nil {
		set["category"] = *upd.Category
	}
	if upd.Subcategory != nil {
		set["subcategory"] = *upd.Subcategory
	}
	if upd.Priority != nil {
		set["priority"] = *upd.Priority
		set["priorityRank"] = upd.Priority.Rank()
	}
	if upd.Appointment != nil {
		set["appointment"] = *upd.Appointment
	}

	update := bson.M{
		"$set":  set,
		"$push": bson.M{"auditTrail": event},
	}
	return r.conditionalUpdate(ctx, id, bson.M{"_id": id, "status": expectStatus}, update)
}

func (r *MongoTicketRepository) conditionalUpdate(ctx context.Context, id string, guard, update bson.M) (*domain.Ticket, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var ticket domain.Ticket
	err := r.collection.FindOneAndUpdate(ctx, guard, update, opts).Decode(&ticket)
	if err == nil {
		return &ticket, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	exists, countErr := r.collection.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if countErr != nil {
		return nil, countErr
	}
	if exists == 0 {
		return nil, ErrNotFound
	}
	return nil, ErrConflict
}

func (r *MongoTicketRepository) Delete(ctx context.Context, id string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

var matchNothing = bson.M{"_id": bson.M{"$in": bson.A{}}}

// buildTicketQuery is shared by List, Count and CountByStatus so list totals and
// tab counts are always computed from the same predicate.
func buildTicketQuery(f TicketFilter) bson.M {
	var clauses []bson.M

	switch {
	case f.Scope.All:
	case f.Scope.Freelancer != "":
		clauses = append(clauses, bson.M{"$or": bson.A{
			bson.M{"status": domain.TicketStatusLibre, "assignedTo": bson.M{"$in": bson.A{nil, ""}}},
			bson.M{"assignedTo": f.Scope.Freelancer},
		}})
	case f.Scope.CreatedBy != "":
		clauses = append(clauses, bson.M{"createdBy": f.Scope.CreatedBy})
	default:
		return matchNothing
	}

	if f.Status != nil {
		clauses = append(clauses, bson.M{"status": *f.Status})
	}
	if f.UnassignedOnly {
		clauses = append(clauses, bson.M{"assignedTo": bson.M{"$in": bson.A{nil, ""}}})
	}
	if f.AssignedTo != nil {
		clauses = append(clauses, bson.M{"assignedTo": *f.AssignedTo})
	}
	if len(f.Priorities) > 0 {
		clauses = append(clauses, bson.M{"priority": bson.M{"$in": f.Priorities}})
	}
	if f.Category != nil {
		clauses = append(clauses, bson.M{"category": *f.Category})
	}
	if f.SearchTerm != nil && strings.TrimSpace(*f.SearchTerm) != "" {
		pattern := primitiveRegex(strings.TrimSpace(*f.SearchTerm))
		clauses = append(clauses, bson.M{"$or": bson.A{
			bson.M{"title": pattern},
			bson.M{"description": pattern},
			bson.M{"reference": pattern},
		}})
	}

	switch len(clauses) {
	case 0:
		return bson.M{}
	case 1:
		return clauses[0]
	default:
		and := make(bson.A, 0, len(clauses))
		for _, c := range clauses {
			and = append(and, c)
		}
		return bson.M{"$and": and}
	}
}

func primitiveRegex(term string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(term), "$options": "i"}
}

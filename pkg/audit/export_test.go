package audit

import "go.mongodb.org/mongo-driver/v2/bson"

var MongoFilter func(Criteria) bson.D = filter

// Package sample declares the demonstration entity model served by the
// searchy CLI and exercised by the tests.
package sample

import (
	"reflect"
	"time"
)

// Person is the root entity of the sample model
type Person struct {
	ID              int64
	FirstName       string
	LastName        string
	Email           string
	Birthday        *time.Time
	Height          *float64
	Weight          *float64
	NickNames       map[string]struct{}
	PhoneNumbers    []string
	Addresses       []*Address `orm:"many_to_many"`
	Job             *Job       `orm:"has_one,optional"`
	Vehicles        []*Vehicle `orm:"has_many,ref"`
	Characteristics map[string]string
	CreatedOn       time.Time

	Notes string `orm:"-"`
}

// TableName and CollectionName both map Person to persons
func (Person) TableName() string      { return "persons" }
func (Person) CollectionName() string { return "persons" }

// Address is shared between people
type Address struct {
	ID      int64
	Street  string
	City    string
	ZipCode string
	Country string
	Persons []*Person `orm:"many_to_many,through=persons_addresses"`
}

// TableName and CollectionName both map Address to addresses
func (Address) TableName() string      { return "addresses" }
func (Address) CollectionName() string { return "addresses" }

// Job is held by at most one person
type Job struct {
	ID       int64
	Title    string
	Company  string
	Salary   int
	HireDate time.Time
	Person   *Person `orm:"belongs_to"`
}

// TableName and CollectionName both map Job to jobs
func (Job) TableName() string      { return "jobs" }
func (Job) CollectionName() string { return "jobs" }

// Vehicle is owned by one person
type Vehicle struct {
	ID          int64
	VehicleType string
	Brand       string
	Model       string
	Person      *Person    `orm:"belongs_to"`
	Features    FeatureSet `orm:"has_many"`
}

// TableName and CollectionName both map Vehicle to vehicles
func (Vehicle) TableName() string      { return "vehicles" }
func (Vehicle) CollectionName() string { return "vehicles" }

// Feature describes one vehicle option
type Feature struct {
	ID          int64
	Name        string
	Description string
	Metadata    map[string]string
	Vehicle     *Vehicle `orm:"belongs_to"`
}

// TableName and CollectionName both map Feature to features
func (Feature) TableName() string      { return "features" }
func (Feature) CollectionName() string { return "features" }

// FeatureSet is a custom container of features
type FeatureSet struct {
	items []*Feature
}

// ElementType reports the element type of the set
func (FeatureSet) ElementType() reflect.Type {
	return reflect.TypeOf(&Feature{})
}

// Add appends features to the set
func (s *FeatureSet) Add(features ...*Feature) {
	s.items = append(s.items, features...)
}

// Len returns the number of features
func (s FeatureSet) Len() int {
	return len(s.items)
}

// Models returns one value of every sample entity
func Models() []any {
	return []any{Person{}, Address{}, Job{}, Vehicle{}, Feature{}}
}

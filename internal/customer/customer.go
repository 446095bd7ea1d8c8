// Package customer defines the record moved by the import and export jobs and its
// mapping to CSV lines, table rows and parquet columns.
package customer

// Customer is one customer record. ID is the unique key.
type Customer struct {
	ID        string `gorm:"column:id;primaryKey" parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	FirstName string `gorm:"column:firstname" parquet:"name=firstname, type=BYTE_ARRAY, convertedtype=UTF8"`
	LastName  string `gorm:"column:lastname" parquet:"name=lastname, type=BYTE_ARRAY, convertedtype=UTF8"`
	Email     string `gorm:"column:email" parquet:"name=email, type=BYTE_ARRAY, convertedtype=UTF8"`
	Gender    string `gorm:"column:gender" parquet:"name=gender, type=BYTE_ARRAY, convertedtype=UTF8"`
	ContactNo string `gorm:"column:contact" parquet:"name=contact, type=BYTE_ARRAY, convertedtype=UTF8"`
	Country   string `gorm:"column:country" parquet:"name=country, type=BYTE_ARRAY, convertedtype=UTF8"`
	DOB       string `gorm:"column:dob" parquet:"name=dob, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// TableName is the table customers are stored in.
func (Customer) TableName() string {
	return "customer"
}

// Key returns the customer ID.
func (c Customer) Key() string {
	return c.ID
}

// Fields is the order of fields in a CSV line.
var Fields = []string{"id", "firstName", "lastName", "email", "gender", "contactNo", "country", "dob"}

// KeyColumn is the column customers are keyed and ordered by.
const KeyColumn = "id"

// UpdateColumns are overwritten when an imported customer already exists.
var UpdateColumns = []string{"firstname", "lastname", "email", "gender", "contact", "country", "dob"}

// FromRecord maps tokens in Fields order to a Customer. Missing trailing tokens leave
// their fields empty and extra tokens are ignored.
func FromRecord(tokens []string) Customer {
	get := func(i int) string {
		if i < len(tokens) {
			return tokens[i]
		}
		return ""
	}
	return Customer{
		ID:        get(0),
		FirstName: get(1),
		LastName:  get(2),
		Email:     get(3),
		Gender:    get(4),
		ContactNo: get(5),
		Country:   get(6),
		DOB:       get(7),
	}
}

// Record returns the fields of c in Fields order.
func (c Customer) Record() []string {
	return []string{c.ID, c.FirstName, c.LastName, c.Email, c.Gender, c.ContactNo, c.Country, c.DOB}
}

// MapFieldSet maps the tokens of a CSV line. It never fails: short lines leave fields empty.
func MapFieldSet(tokens []string) (Customer, error) {
	return FromRecord(tokens), nil
}

// AggregateLine renders c as the tokens of a CSV line.
func AggregateLine(c Customer) []string {
	return c.Record()
}

package ofx

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/Veraticus/tally/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Sample OFX data for testing.
const sampleBankOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-25.50
<FITID>2024011501
<NAME>STARBUCKS STORE #1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240120120000[0:GMT]
<TRNAMT>-125.00
<FITID>2024012001
<NAME>Whole Foods Market
</STMTTRN>
<STMTTRN>
<TRNTYPE>CHECK
<DTPOSTED>20240125120000[0:GMT]
<TRNAMT>-500.00
<FITID>2024012501
<CHECKNUM>1234
<NAME>CHECK #1234
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

const sampleCreditCardOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>USD
<CCACCTFROM>
<ACCTID>4111111111111111
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240110120000[0:GMT]
<TRNAMT>-45.99
<FITID>CC2024011001
<NAME>AMAZON.COM*RT4Y7HG2
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-15.00
<FITID>CC2024011501
<NAME>NETFLIX.COM
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-500.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`

func TestParseFile(t *testing.T) {
	tests := []struct {
		name          string
		ofxData       string
		expectedCount int
		expectedError bool
	}{
		{
			name:          "valid bank statement",
			ofxData:       sampleBankOFX,
			expectedCount: 3,
			expectedError: false,
		},
		{
			name:          "valid credit card statement",
			ofxData:       sampleCreditCardOFX,
			expectedCount: 2,
			expectedError: false,
		},
		{
			name:          "invalid OFX data",
			ofxData:       "not valid OFX",
			expectedCount: 0,
			expectedError: true,
		},
		{
			name:          "empty OFX",
			ofxData:       "",
			expectedCount: 0,
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewParser()
			reader := strings.NewReader(tt.ofxData)

			transactions, err := parser.ParseFile(context.Background(), reader, "alice")

			if tt.expectedError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Len(t, transactions, tt.expectedCount)
			}
		})
	}
}

func TestParseBankTransactions(t *testing.T) {
	parser := NewParser()
	reader := strings.NewReader(sampleBankOFX)

	transactions, err := parser.ParseFile(context.Background(), reader, "alice")
	require.NoError(t, err)
	require.Len(t, transactions, 3)

	assert.Equal(t, model.Transaction{
		Date:     "2024-01-15",
		Amount:   -25.50,
		Merchant: "STARBUCKS STORE #1234",
		Username: "alice",
	}, transactions[0])

	assert.Equal(t, "2024-01-20", transactions[1].Date)
	assert.Equal(t, "Whole Foods Market", transactions[1].Merchant)
	assert.Equal(t, -125.00, transactions[1].Amount)

	assert.Equal(t, "CHECK #1234", transactions[2].Merchant)
	assert.Equal(t, -500.00, transactions[2].Amount)

	for _, tx := range transactions {
		assert.NoError(t, tx.Validate())
		assert.False(t, tx.IsSynced())
	}
}

func TestParseCreditCardTransactions(t *testing.T) {
	parser := NewParser()
	reader := strings.NewReader(sampleCreditCardOFX)

	transactions, err := parser.ParseFile(context.Background(), reader, "bob")
	require.NoError(t, err)
	require.Len(t, transactions, 2)

	assert.Equal(t, "AMAZON.COM*RT4Y7HG2", transactions[0].Merchant)
	assert.Equal(t, -45.99, transactions[0].Amount)
	assert.Equal(t, "2024-01-10", transactions[0].Date)
	assert.Equal(t, "bob", transactions[0].Username)

	assert.Equal(t, "NETFLIX.COM", transactions[1].Merchant)
	assert.Equal(t, -15.00, transactions[1].Amount)
}

func TestConvertTransaction(t *testing.T) {
	parser := NewParser()
	posted := ofxgo.Date{Time: time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC)}

	tests := []struct {
		name     string
		tx       ofxgo.Transaction
		merchant string
		category string
		amount   string
	}{
		{
			name:     "interest is categorized",
			tx:       ofxgo.Transaction{TrnType: ofxgo.TrnTypeInt, Name: "INTEREST PAID"},
			merchant: "INTEREST PAID",
			category: "Interest",
			amount:   "1.25",
		},
		{
			name:     "fee is categorized",
			tx:       ofxgo.Transaction{TrnType: ofxgo.TrnTypeFee, Name: "MONTHLY FEE"},
			merchant: "MONTHLY FEE",
			category: "Bank Fees",
			amount:   "-5",
		},
		{
			name:     "unnamed check uses check number",
			tx:       ofxgo.Transaction{TrnType: ofxgo.TrnTypeCheck, CheckNum: "101"},
			merchant: "Check #101",
			amount:   "-80",
		},
		{
			name:     "unnamed transaction uses type",
			tx:       ofxgo.Transaction{TrnType: ofxgo.TrnTypeATM},
			merchant: "ATM",
			category: "Cash & ATM",
			amount:   "-40",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.tx.DtPosted = posted
			_, ok := tt.tx.TrnAmt.SetString(tt.amount)
			require.True(t, ok)

			got := parser.convertTransaction(tt.tx, "alice")
			assert.Equal(t, "2024-02-29", got.Date)
			assert.Equal(t, tt.merchant, got.Merchant)
			assert.Equal(t, tt.category, got.Category)
		})
	}
}

func TestExtractMerchantName(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "remove POS prefix",
			input:    "POS PURCHASE STARBUCKS",
			expected: "STARBUCKS",
		},
		{
			name:     "remove DEBIT CARD prefix",
			input:    "DEBIT CARD PURCHASE WHOLE FOODS",
			expected: "WHOLE FOODS",
		},
		{
			name:     "keep clean name",
			input:    "NETFLIX.COM",
			expected: "NETFLIX.COM",
		},
		{
			name:     "trim whitespace",
			input:    "  AMAZON.COM  ",
			expected: "AMAZON.COM",
		},
		{
			name:     "drop leading date",
			input:    "PURCHASE AUTHORIZED ON 01/15 CORNER DELI",
			expected: "CORNER DELI",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := ofxgo.Transaction{
				Name: ofxgo.String(tt.input),
			}
			result := parser.extractMerchantName(tx)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParsedTransactionsDeduplicateByContent(t *testing.T) {
	parser := NewParser()

	first, err := parser.ParseFile(context.Background(), strings.NewReader(sampleBankOFX), "alice")
	require.NoError(t, err)
	second, err := parser.ParseFile(context.Background(), strings.NewReader(sampleBankOFX), "alice")
	require.NoError(t, err)

	for i := range first {
		assert.True(t, first[i].SameContent(&second[i]))
		assert.Equal(t, first[i].GenerateHash(), second[i].GenerateHash())
	}
	assert.False(t, first[0].SameContent(&first[1]))
}

func TestGetAccounts(t *testing.T) {
	parser := NewParser()

	// Test with bank statement
	reader := strings.NewReader(sampleBankOFX)
	accounts, err := parser.GetAccounts(context.Background(), reader)
	require.NoError(t, err)
	assert.Equal(t, []string{"1234567890"}, accounts)

	// Test with credit card statement
	reader = strings.NewReader(sampleCreditCardOFX)
	accounts, err = parser.GetAccounts(context.Background(), reader)
	require.NoError(t, err)
	assert.Contains(t, accounts, "4111111111111111")
}

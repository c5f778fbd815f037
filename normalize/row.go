// Package normalize maps loosely typed medication records onto the fixed
// 21-column layout of the medications table.
package normalize

// Column positions in Row. The order matches the destination table.
const (
	ColCodigo = iota
	ColNumeroRegistro
	ColNomeProduto
	ColNumeroProcesso
	ColEmpresaNome
	ColEmpresaCnpj
	ColPrincipioAtivo
	ColTarja
	ColApresentacoes
	ColBulaTxt
	ColBulaPdfURL
	ColBulaTxtProfissional
	ColBulaPdfProfissionalURL
	ColCategoriaRegulatoria
	ColSituacaoRegistro
	ColMedicamentoReferencia
	ColClassesTerapeuticas
	ColIndicacao
	ColDataProduto
	ColDataVencimentoRegistro
	ColDataPublicacao

	ColumnCount
)

// Columns holds destination column names, indexed by the Col constants.
var Columns = [ColumnCount]string{
	"codigo",
	"numeroRegistro",
	"nomeProduto",
	"numeroProcesso",
	"empresaNome",
	"empresaCnpj",
	"principioAtivo",
	"tarja",
	"apresentacoes",
	"bulaTxt",
	"bulaPdfUrl",
	"bulaTxtProfissional",
	"bulaPdfProfissionalUrl",
	"categoriaRegulatoria",
	"situacaoRegistro",
	"medicamentoReferencia",
	"classesTerapeuticas",
	"indicacao",
	"dataProduto",
	"dataVencimentoRegistro",
	"dataPublicacao",
}

// sourceFields holds the JSON field read for each column.
var sourceFields = [ColumnCount]string{
	"codigo",
	"numeroRegistro",
	"nomeProduto",
	"numeroProcesso",
	"empresaNome",
	"empresaCnpj",
	"principioAtivo",
	"tarja",
	"apresentacoes",
	"bula_txt",
	"bula_pdf_url",
	"bula_txt_profissional",
	"bula_pdf_profissional_url",
	"categoriaRegulatoria",
	"situacaoRegistro",
	"medicamentoReferencia",
	"classesTerapeuticas",
	"indicacao",
	"dataProduto",
	"dataVencimentoRegistro",
	"dataPublicacao",
}

// Row is one normalized medication. Each cell is either a string or nil
// (SQL NULL); nomeProduto and numeroProcesso are never nil.
type Row [ColumnCount]any

// Values returns the cells as a slice suitable for query arguments.
func (r *Row) Values() []any {
	out := make([]any, ColumnCount)
	copy(out, r[:])
	return out
}

// Text returns the cell at col and whether it is non-null.
func (r *Row) Text(col int) (string, bool) {
	s, ok := r[col].(string)
	return s, ok
}

// NaturalKey identifies a medication: registration code plus registration
// number. Null parts are rendered empty.
func (r *Row) NaturalKey() string {
	codigo, _ := r.Text(ColCodigo)
	registro, _ := r.Text(ColNumeroRegistro)
	return codigo + "\x1f" + registro
}
